package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"tonearm/internal/fileutil"
	"tonearm/internal/services"
)

const (
	component = "decode"

	DefaultSampleRate = 11025
	DefaultTimeout    = 60 * time.Second
)

// PCM holds signed 16-bit mono samples.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// DurationSeconds returns the length of the decoded window.
func (p PCM) DurationSeconds() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// Bytes returns the samples as little-endian s16 for piping into other tools.
func (p PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Decoder runs ffmpeg to produce PCM.
type Decoder struct {
	Binary     string
	SampleRate int
	Timeout    time.Duration
}

// New constructs a decoder, filling defaults for zero values.
func New(binary string, sampleRate int, timeout time.Duration) *Decoder {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Decoder{Binary: binary, SampleRate: sampleRate, Timeout: timeout}
}

// Decode reads at most maxSeconds of audio from path.
func (d *Decoder) Decode(ctx context.Context, path string, maxSeconds int) (PCM, error) {
	if d == nil {
		return PCM{}, services.Wrap(services.ErrConfiguration, component, "decode", "decoder not configured", nil)
	}
	if maxSeconds <= 0 {
		return PCM{}, services.Wrap(services.ErrValidation, component, "decode", fmt.Sprintf("invalid max seconds %d", maxSeconds), nil)
	}
	if !fileutil.IsAudioFile(path) {
		return PCM{}, services.Wrap(services.ErrUnsupported, component, "decode", "unrecognized audio extension: "+path, nil)
	}
	if _, err := os.Stat(path); err != nil {
		return PCM{}, services.Wrap(services.ErrNotFound, component, "decode", "stat input", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", path,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(d.SampleRate),
		"-t", strconv.Itoa(maxSeconds),
		"-f", "s16le",
		"-c:a", "pcm_s16le",
		"-",
	}
	cmd := exec.CommandContext(runCtx, d.Binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return PCM{}, ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return PCM{}, services.Wrap(services.ErrTimeout, component, "decode", fmt.Sprintf("ffmpeg exceeded %s", d.Timeout), runCtx.Err())
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return PCM{}, services.Wrap(services.ErrConfiguration, component, "decode", "ffmpeg binary not found", err)
		}
		return PCM{}, classifyFailure(strings.TrimSpace(stderr.String()), err)
	}

	raw := stdout.Bytes()
	if len(raw) < 2 {
		return PCM{}, services.Wrap(services.ErrDecode, component, "decode", "ffmpeg produced no audio", nil)
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return PCM{Samples: samples, SampleRate: d.SampleRate}, nil
}

func classifyFailure(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "decoder not found"),
		strings.Contains(lower, "does not contain any stream"),
		strings.Contains(lower, "output file #0 does not contain any stream"),
		strings.Contains(lower, "unknown decoder"):
		return services.Wrap(services.ErrUnsupported, component, "decode", stderr, err)
	case strings.Contains(lower, "invalid data found"):
		return services.Wrap(services.ErrDecode, component, "decode", stderr, err)
	default:
		if stderr == "" {
			stderr = "ffmpeg failed"
		}
		return services.Wrap(services.ErrDecode, component, "decode", stderr, err)
	}
}
