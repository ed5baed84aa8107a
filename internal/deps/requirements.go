package deps

import (
	"strings"

	"tonearm/internal/config"
)

// Requirements lists the binaries the fingerprint configuration needs.
// fpcalc is optional unless the chromaprint backend is forced.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	fp := cfg.Fingerprint
	backend := strings.ToLower(strings.TrimSpace(fp.Backend))
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     fp.FFmpegBinary,
			Description: "Required to decode audio for fingerprinting",
			VersionArgs: []string{"-hide_banner", "-version"},
		},
		{
			Name:        "FFprobe",
			Command:     fp.FFprobeBinary,
			Description: "Required to inspect containers and read tags",
			VersionArgs: []string{"-hide_banner", "-version"},
		},
		{
			Name:        "fpcalc",
			Command:     fp.FpcalcBinary,
			Description: "Chromaprint fingerprints for AcoustID lookups",
			Optional:    backend != "chromaprint",
			VersionArgs: []string{"-version"},
		},
	}
}
