package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"tonearm/internal/logging"
	"tonearm/internal/media/decode"
	"tonearm/internal/services"
)

// Backend names accepted by the generator.
const (
	BackendAuto        = "auto"
	BackendChromaprint = "chromaprint"
	BackendSpectral    = "spectral"
)

// Decoder produces a bounded PCM window for a file.
type Decoder interface {
	Decode(ctx context.Context, path string, maxSeconds int) (decode.PCM, error)
}

// DurationProbe reports the full length of a file. The decoded window is
// capped, so lookups need the container duration.
type DurationProbe func(ctx context.Context, path string) (float64, error)

// Options configures a Generator.
type Options struct {
	Backend      string
	MaxSeconds   int
	FpcalcBinary string
	Timeout      time.Duration
	Probe        DurationProbe
	Logger       *slog.Logger
	Now          func() time.Time
	LookPath     func(string) (string, error)
}

// Generator computes fingerprints with a fixed backend.
type Generator struct {
	decoder    Decoder
	backend    string
	maxSeconds int
	fpcalc     string
	timeout    time.Duration
	probe      DurationProbe
	logger     *slog.Logger
	now        func() time.Time
}

// NewGenerator resolves the backend and returns a ready generator. The auto
// backend picks chromaprint when fpcalc is on PATH and spectral otherwise.
func NewGenerator(decoder Decoder, opts Options) (*Generator, error) {
	if decoder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "fingerprint", "init", "decoder is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	fpcalc := strings.TrimSpace(opts.FpcalcBinary)
	if fpcalc == "" {
		fpcalc = "fpcalc"
	}
	maxSeconds := opts.MaxSeconds
	if maxSeconds <= 0 {
		maxSeconds = 120
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = decode.DefaultTimeout
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch backend {
	case "", BackendAuto:
		if resolved, err := lookPath(fpcalc); err == nil {
			fpcalc = resolved
			backend = BackendChromaprint
		} else {
			backend = BackendSpectral
		}
	case BackendChromaprint:
		resolved, err := lookPath(fpcalc)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "fingerprint", "init", "chromaprint backend requires "+fpcalc, err)
		}
		fpcalc = resolved
	case BackendSpectral:
	default:
		return nil, services.Wrap(services.ErrConfiguration, "fingerprint", "init", fmt.Sprintf("unknown backend %q", opts.Backend), nil)
	}

	return &Generator{
		decoder:    decoder,
		backend:    backend,
		maxSeconds: maxSeconds,
		fpcalc:     fpcalc,
		timeout:    timeout,
		probe:      opts.Probe,
		logger:     logging.NewComponentLogger(logger, "fingerprint"),
		now:        now,
	}, nil
}

// Algorithm returns the algorithm name this generator records.
func (g *Generator) Algorithm() string {
	if g.backend == BackendChromaprint {
		return AlgorithmChromaprint
	}
	return AlgorithmSpectral
}

// Generate decodes path and computes its fingerprint.
func (g *Generator) Generate(ctx context.Context, path string) (Fingerprint, error) {
	start := time.Now()
	pcm, err := g.decoder.Decode(ctx, path, g.maxSeconds)
	if err != nil {
		return Fingerprint{}, err
	}

	var signature string
	switch g.backend {
	case BackendChromaprint:
		signature, err = chromaprintSignature(ctx, g.fpcalc, g.timeout, pcm, g.maxSeconds)
	default:
		signature, err = spectralSignature(pcm)
	}
	if err != nil {
		return Fingerprint{}, err
	}

	duration := pcm.DurationSeconds()
	if g.probe != nil {
		if probed, probeErr := g.probe(ctx, path); probeErr == nil && probed > 0 {
			duration = probed
		} else if probeErr != nil {
			g.logger.Debug("duration probe failed; using decoded window",
				logging.String("path", path),
				logging.Error(probeErr))
		}
	}

	fp := Fingerprint{
		Signature:       signature,
		DurationSeconds: duration,
		ComputedAt:      g.now().UTC(),
		Algorithm:       g.Algorithm(),
	}
	if err := fp.Validate(); err != nil {
		return Fingerprint{}, services.Wrap(services.ErrDecode, "fingerprint", "generate", "invalid fingerprint", err)
	}

	g.logger.Debug("fingerprint computed",
		logging.String("path", path),
		logging.String("algorithm", fp.Algorithm),
		logging.Float64("duration_seconds", fp.DurationSeconds),
		logging.Duration("elapsed", time.Since(start)))
	return fp, nil
}
