// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate, tags)
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Inspect distinguishes containers ffprobe cannot parse (ErrInvalidData) from
// process failures so callers can treat the former as permanent. Helper
// methods on Result provide stream counts, duration parsing with a stream
// fallback, and case-insensitive tag access.
package ffprobe
