package preflight

import (
	"context"

	"tonearm/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes the directory checks and, when a key is configured and
// network checks are requested, the AcoustID check.
func RunAll(ctx context.Context, cfg *config.Config, network bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckReadableDirectory("Library directory", cfg.Paths.LibraryDir))
	}
	if network && cfg.AcoustID.APIKey != "" {
		results = append(results, CheckAcoustID(ctx, cfg.AcoustID.BaseURL, cfg.AcoustID.APIKey))
	}
	return results
}
