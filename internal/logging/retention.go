package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneRunLogs deletes per-run log files in dir that match pattern and were
// last written more than retentionDays ago. active is never removed, and a
// non-positive retentionDays keeps everything. It returns the number of files
// removed.
func PruneRunLogs(logger *slog.Logger, dir, pattern, active string, retentionDays int) int {
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	if active != "" {
		if abs, err := filepath.Abs(active); err == nil {
			active = abs
		}
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, candidate := range matches {
		if abs, err := filepath.Abs(candidate); err == nil {
			candidate = abs
		}
		if candidate == active {
			continue
		}
		info, err := os.Lstat(candidate)
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(candidate); err != nil {
			WarnWithContext(logger, "run log not pruned", "log_retention_failed",
				String("path", candidate),
				Error(err),
				String(FieldErrorHint, "check ownership of the log directory"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("pruned run logs",
			String(FieldEventType, "log_pruned"),
			Int("removed", removed),
			Int("retention_days", retentionDays),
		)
	}
	return removed
}
