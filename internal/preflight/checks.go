package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"tonearm/internal/acoustid"
	"tonearm/internal/config"
	"tonearm/internal/deps"
	"tonearm/internal/services"
)

// probeSignature is a syntactically valid but meaningless fingerprint. The
// service validates the client key before the fingerprint, so an "invalid
// fingerprint" reply proves the key is accepted.
const probeSignature = "AQAAAA"

// CheckAcoustID verifies that the AcoustID API is reachable and accepts the
// configured client key.
func CheckAcoustID(ctx context.Context, baseURL, apiKey string) Result {
	const name = "AcoustID"

	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key (fingerprint lookups disabled)"}
	}
	client, err := acoustid.New(apiKey, baseURL, acoustid.WithTimeout(5*time.Second))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = client.Lookup(checkCtx, probeSignature, 1)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case errors.Is(err, services.ErrConfiguration):
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case errors.Is(err, services.ErrRateLimited):
		return Result{Name: name, Passed: true, Detail: "Reachable (rate limited)"}
	case errors.Is(err, services.ErrPermanent):
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("lookup failed (%v)", err)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableDirectory verifies a directory tonearm only reads from.
func CheckReadableDirectory(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// Both the daemon and the CLI status command use this.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(ctx, deps.Requirements(cfg))
}
