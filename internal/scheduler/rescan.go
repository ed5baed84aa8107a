package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// RescanReport summarizes one rescan pass.
type RescanReport struct {
	Considered int      `json:"considered"`
	Submitted  []string `json:"submitted"`
	Skipped    int      `json:"skipped"`
	Errors     int      `json:"errors"`
}

// TriggerRescan re-submits every eligible file with Rescan set. Files that
// already have an active job are skipped.
func (s *Scheduler) TriggerRescan(ctx context.Context) (RescanReport, error) {
	if s.eligible == nil {
		return RescanReport{}, services.Wrap(services.ErrConfiguration, "scheduler", "rescan", "no eligibility policy configured", nil)
	}
	paths, err := s.eligible(ctx)
	if err != nil {
		return RescanReport{}, services.Wrap(services.ErrTransient, "scheduler", "rescan", "list eligible files", err)
	}

	report := RescanReport{Considered: len(paths), Submitted: []string{}}
	for _, path := range paths {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		id, created, err := s.submit(ctx, path, true)
		switch {
		case err != nil:
			report.Errors++
			s.logger.Debug("rescan submit failed", logging.String("path", path), logging.Error(err))
		case created:
			report.Submitted = append(report.Submitted, id)
		default:
			report.Skipped++
		}
	}

	s.mu.Lock()
	s.lastRun = s.clock.Now().UTC()
	s.mu.Unlock()
	s.logger.Info("rescan pass complete",
		logging.Int("considered", report.Considered),
		logging.Int("submitted", len(report.Submitted)),
		logging.Int("skipped", report.Skipped),
		logging.Int("errors", report.Errors),
	)
	return report, nil
}

func (s *Scheduler) rescanLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.clock.Now().Add(s.rescanInterval)):
		}
		if _, err := s.TriggerRescan(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.setLastError(err)
			logging.WarnWithContext(s.logger, "rescan pass failed", "rescan_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check library_dir and database access"),
				logging.String(logging.FieldImpact, "unresolved files wait for the next pass"),
			)
		}
	}
}

// EligibilityStore is the store surface DefaultEligible needs.
type EligibilityStore interface {
	ListMatchResults(ctx context.Context, states ...string) ([]*queue.MatchRecord, error)
	ListJobs(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
}

// DefaultEligible selects tracked files whose latest result is unresolved or
// low confidence and that still exist, plus audio files under libraryDir
// that have no result yet. A file whose latest job failed permanently is left
// alone until its modification time moves past that failure.
func DefaultEligible(store EligibilityStore, libraryDir string) EligibleFunc {
	return func(ctx context.Context) ([]string, error) {
		records, err := store.ListMatchResults(ctx)
		if err != nil {
			return nil, err
		}
		jobs, err := store.ListJobs(ctx)
		if err != nil {
			return nil, err
		}
		latest := make(map[string]*queue.Job, len(jobs))
		for _, job := range jobs {
			latest[job.FileID] = job
		}

		seen := make(map[string]struct{}, len(records))
		var paths []string
		for _, rec := range records {
			seen[rec.FileID] = struct{}{}
			if rec.State == "resolved" && !rec.LowConfidence {
				continue
			}
			if fileutil.Exists(rec.Path) && !failedPermanently(latest[rec.FileID], rec.Path) {
				paths = append(paths, rec.Path)
			}
		}
		if libraryDir != "" {
			files, err := fileutil.WalkAudioFiles(libraryDir)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			for _, path := range files {
				id, err := fileutil.FileID(path)
				if err != nil {
					continue
				}
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				if failedPermanently(latest[id], path) {
					continue
				}
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)
		return paths, nil
	}
}

// failedPermanently reports whether job ended in a permanent failure that
// the file has not been modified since.
func failedPermanently(job *queue.Job, path string) bool {
	if job == nil || job.Status != queue.StatusFailed || job.ErrorClass != string(services.ClassPermanent) {
		return false
	}
	failedAt := job.UpdatedAt
	if job.CompletedAt != nil {
		failedAt = *job.CompletedAt
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.ModTime().After(failedAt)
}
