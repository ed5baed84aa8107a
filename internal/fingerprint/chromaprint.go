package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"tonearm/internal/media/decode"
	"tonearm/internal/services"
)

type fpcalcOutput struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// chromaprintSignature feeds pcm to fpcalc over stdin.
func chromaprintSignature(ctx context.Context, binary string, timeout time.Duration, pcm decode.PCM, maxSeconds int) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-format", "s16le",
		"-rate", strconv.Itoa(pcm.SampleRate),
		"-channels", "1",
		"-json",
		"-length", strconv.Itoa(maxSeconds),
		"-",
	}
	cmd := exec.CommandContext(runCtx, binary, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(pcm.Bytes())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", services.Wrap(services.ErrTimeout, "fingerprint", "fpcalc", fmt.Sprintf("fpcalc exceeded %s", timeout), runCtx.Err())
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", services.Wrap(services.ErrConfiguration, "fingerprint", "fpcalc", "fpcalc binary not found", err)
		}
		return "", services.Wrap(services.ErrDecode, "fingerprint", "fpcalc", strings.TrimSpace(stderr.String()), err)
	}

	var out fpcalcOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", services.Wrap(services.ErrDecode, "fingerprint", "fpcalc", "parse fpcalc output", err)
	}
	sig := strings.TrimSpace(out.Fingerprint)
	if sig == "" {
		return "", services.Wrap(services.ErrDecode, "fingerprint", "fpcalc", "fpcalc returned an empty fingerprint", nil)
	}
	return sig, nil
}
