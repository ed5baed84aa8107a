// Package logging assembles structured slog loggers and formatting helpers used
// across tonearm.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing (including per-component level overrides), and exposes
// context-aware helpers so strategy and scheduler code can tag log lines with
// job IDs, file IDs, strategies, and attempts. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
