package fingerprint

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	"tonearm/internal/services"
)

// Algorithm names recorded with each fingerprint.
const (
	AlgorithmChromaprint = "chromaprint"
	AlgorithmSpectral    = "spectral"
)

// Fingerprint is the acoustic signature of one file.
type Fingerprint struct {
	Signature       string    `json:"signature"`
	DurationSeconds float64   `json:"duration_seconds"`
	ComputedAt      time.Time `json:"computed_at"`
	Algorithm       string    `json:"algorithm"`
}

// Validate checks the structural invariants of a fingerprint.
func (f Fingerprint) Validate() error {
	sig := strings.TrimSpace(f.Signature)
	if sig == "" {
		return services.Wrap(services.ErrValidation, "fingerprint", "validate", "empty signature", nil)
	}
	if _, err := base64.RawURLEncoding.DecodeString(sig); err != nil {
		return services.Wrap(services.ErrValidation, "fingerprint", "validate", "signature is not url-safe base64", err)
	}
	if math.IsNaN(f.DurationSeconds) || f.DurationSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "fingerprint", "validate", fmt.Sprintf("invalid duration %v", f.DurationSeconds), nil)
	}
	return nil
}

// Key returns a compact identifier for caches and logs.
func (f Fingerprint) Key() string {
	return f.Algorithm + ":" + f.Signature
}
