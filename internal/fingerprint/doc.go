// Package fingerprint computes acoustic signatures for audio files.
//
// A Generator decodes a bounded PCM window through the decode collaborator
// and hands it to one of two backends:
//
//   - chromaprint pipes the PCM into fpcalc and returns the compressed,
//     AcoustID-compatible signature.
//   - spectral computes a signature in-process from a Hann-windowed STFT:
//     33 log-spaced band energies per frame reduced to 32-bit sub-fingerprints
//     from the signs of band energy differences across time.
//
// Both backends are deterministic for identical input. Signatures are
// URL-safe base64 without padding. Spectral signatures can be compared
// locally with Similarity; chromaprint signatures are meant for AcoustID.
package fingerprint
