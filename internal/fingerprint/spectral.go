package fingerprint

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/dsp/fourier"

	"tonearm/internal/media/decode"
	"tonearm/internal/services"
)

const (
	spectralFrameSize = 4096
	spectralHop       = spectralFrameSize / 3
	spectralBands     = 33
	spectralMinFreq   = 300.0
	spectralMaxFreq   = 2000.0

	// Frames of misalignment tolerated by Similarity.
	maxAlignShift = 16
	minOverlap    = 8
)

// spectralSignature computes sub-fingerprints for pcm and encodes them.
func spectralSignature(pcm decode.PCM) (string, error) {
	codes, err := spectralCodes(pcm)
	if err != nil {
		return "", err
	}
	return encodeCodes(codes), nil
}

func spectralCodes(pcm decode.PCM) ([]uint32, error) {
	if pcm.SampleRate <= 0 {
		return nil, services.Wrap(services.ErrDecode, "fingerprint", "spectral", "missing sample rate", nil)
	}
	if len(pcm.Samples) < spectralFrameSize+spectralHop {
		return nil, services.Wrap(services.ErrDecode, "fingerprint", "spectral", "audio too short to fingerprint", nil)
	}

	edges := bandEdges(pcm.SampleRate)
	win := hann(spectralFrameSize)
	fft := fourier.NewFFT(spectralFrameSize)
	buf := make([]float64, spectralFrameSize)
	coeffs := make([]complex128, spectralFrameSize/2+1)

	frames := 1 + (len(pcm.Samples)-spectralFrameSize)/spectralHop
	energies := make([][spectralBands]float64, frames)
	for i := 0; i < frames; i++ {
		start := i * spectralHop
		for k := 0; k < spectralFrameSize; k++ {
			buf[k] = float64(pcm.Samples[start+k]) / 32768 * win[k]
		}
		coeffs = fft.Coefficients(coeffs, buf)
		for b := 0; b < spectralBands; b++ {
			var sum float64
			for k := edges[b]; k < edges[b+1]; k++ {
				re, im := real(coeffs[k]), imag(coeffs[k])
				sum += re*re + im*im
			}
			energies[i][b] = sum
		}
	}

	codes := make([]uint32, 0, frames-1)
	audible := false
	for i := 1; i < frames; i++ {
		var code uint32
		for b := 0; b < spectralBands-1; b++ {
			cur := energies[i][b] - energies[i][b+1]
			prev := energies[i-1][b] - energies[i-1][b+1]
			if cur-prev > 0 {
				code |= 1 << uint(b)
			}
		}
		if code != 0 {
			audible = true
		}
		codes = append(codes, code)
	}
	if !audible {
		return nil, services.Wrap(services.ErrDecode, "fingerprint", "spectral", "no audible content", nil)
	}
	return codes, nil
}

// bandEdges returns spectralBands+1 FFT bin indices spaced logarithmically
// between the minimum and maximum frequency. Every band spans at least one bin.
func bandEdges(sampleRate int) []int {
	nyquist := float64(sampleRate) / 2
	maxFreq := math.Min(spectralMaxFreq, nyquist*0.95)
	minFreq := math.Min(spectralMinFreq, maxFreq/4)
	binHz := float64(sampleRate) / spectralFrameSize
	lastBin := spectralFrameSize / 2

	edges := make([]int, spectralBands+1)
	ratio := math.Pow(maxFreq/minFreq, 1/float64(spectralBands))
	for i := range edges {
		freq := minFreq * math.Pow(ratio, float64(i))
		edges[i] = int(math.Round(freq / binHz))
		if i > 0 && edges[i] <= edges[i-1] {
			edges[i] = edges[i-1] + 1
		}
		if edges[i] > lastBin {
			edges[i] = lastBin
		}
	}
	return edges
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func encodeCodes(codes []uint32) string {
	raw := make([]byte, len(codes)*4)
	for i, c := range codes {
		binary.LittleEndian.PutUint32(raw[i*4:], c)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCodes(signature string) ([]uint32, error) {
	raw, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, errors.New("spectral signature length is not a multiple of 4")
	}
	codes := make([]uint32, len(raw)/4)
	for i := range codes {
		codes[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return codes, nil
}

// Similarity compares two spectral fingerprints and returns a score in [0,1]
// where 1 means identical and 0 means no better than chance. Small time
// misalignments are tolerated.
func Similarity(a, b Fingerprint) (float64, error) {
	if a.Algorithm != AlgorithmSpectral || b.Algorithm != AlgorithmSpectral {
		return 0, services.Wrap(services.ErrUnsupported, "fingerprint", "similarity", "only spectral fingerprints can be compared locally", nil)
	}
	ca, err := decodeCodes(a.Signature)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "fingerprint", "similarity", "decode first signature", err)
	}
	cb, err := decodeCodes(b.Signature)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "fingerprint", "similarity", "decode second signature", err)
	}
	return compareCodes(ca, cb), nil
}

func compareCodes(a, b []uint32) float64 {
	best := 0.0
	for shift := -maxAlignShift; shift <= maxAlignShift; shift++ {
		var diff, overlap int
		for i := range a {
			j := i + shift
			if j < 0 || j >= len(b) {
				continue
			}
			diff += bits.OnesCount32(a[i] ^ b[j])
			overlap++
		}
		if overlap < minOverlap && overlap < min(len(a), len(b)) {
			continue
		}
		if overlap == 0 {
			continue
		}
		agreement := 1 - float64(diff)/float64(overlap*(spectralBands-1))
		if agreement > best {
			best = agreement
		}
	}
	// Uncorrelated signatures agree on about half the bits.
	score := (best - 0.5) / 0.5
	return math.Max(0, math.Min(1, score))
}
