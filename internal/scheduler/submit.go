package scheduler

import (
	"context"
	"errors"
	"os"
	"slices"

	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Submit schedules an initial identification of path and returns the job
// id. When the file already has a pending, running, or retrying job, that
// job's id is returned instead.
func (s *Scheduler) Submit(ctx context.Context, path string) (string, error) {
	id, _, err := s.submit(ctx, path, false)
	return id, err
}

// SubmitRescan is Submit for a rescan: the stored fingerprint is ignored and
// recomputed.
func (s *Scheduler) SubmitRescan(ctx context.Context, path string) (string, error) {
	id, _, err := s.submit(ctx, path, true)
	return id, err
}

func (s *Scheduler) submit(ctx context.Context, path string, rescan bool) (string, bool, error) {
	abs, err := fileutil.AbsPath(path)
	if err != nil {
		return "", false, services.Wrap(services.ErrValidation, "scheduler", "submit", "invalid path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, services.Wrap(services.ErrNotFound, "scheduler", "submit", "no such file: "+abs, nil)
		}
		return "", false, services.Wrap(services.ErrValidation, "scheduler", "submit", "cannot access "+abs, err)
	}
	if !info.Mode().IsRegular() {
		return "", false, services.Wrap(services.ErrValidation, "scheduler", "submit", abs+" is not a regular file", nil)
	}
	fileID, err := fileutil.FileID(abs)
	if err != nil {
		return "", false, services.Wrap(services.ErrValidation, "scheduler", "submit", "derive file id", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[fileID]; ok {
		s.logger.Debug("file already has an active job",
			logging.String(logging.FieldJobID, existing),
			logging.String(logging.FieldFileID, fileID),
		)
		return existing, false, nil
	}

	job, created, err := s.store.CreateJob(ctx, &queue.Job{
		FileID:      fileID,
		Path:        abs,
		Rescan:      rescan,
		ScheduledAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return "", false, services.Wrap(services.ErrTransient, "scheduler", "submit", "persist job", err)
	}
	if !created {
		// Active in the store but not in memory: adopt it.
		s.trackLocked(job)
		return job.ID, false, nil
	}
	s.trackLocked(job)
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldFileID, fileID),
		logging.String("path", abs),
		logging.Bool("rescan", rescan),
	)
	s.signal()
	return job.ID, true, nil
}

// trackLocked registers an active job in memory and queues it.
func (s *Scheduler) trackLocked(job *queue.Job) {
	if job == nil || !job.Status.IsActive() {
		return
	}
	s.jobs[job.ID] = job
	s.active[job.FileID] = job.ID
	if job.Status == queue.StatusRetrying && job.NextAttemptAt != nil && job.NextAttemptAt.After(s.clock.Now()) {
		s.delayed[job.ID] = *job.NextAttemptAt
		return
	}
	if !slices.Contains(s.ready, job.ID) {
		s.ready = append(s.ready, job.ID)
	}
}

func (s *Scheduler) untrackLocked(job *queue.Job) {
	delete(s.jobs, job.ID)
	if s.active[job.FileID] == job.ID {
		delete(s.active, job.FileID)
	}
	delete(s.delayed, job.ID)
	delete(s.cancelled, job.ID)
	s.ready = slices.DeleteFunc(s.ready, func(id string) bool { return id == job.ID })
}

// Cancel stops a job. A job waiting for dispatch is failed immediately; a
// running job finishes its current attempt and is then failed instead of
// retried.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		stored, err := s.store.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if stored == nil {
			return services.Wrap(services.ErrNotFound, "scheduler", "cancel", "no job "+id, nil)
		}
		if stored.Status.IsTerminal() {
			return services.Wrap(services.ErrValidation, "scheduler", "cancel", "job "+id+" already "+string(stored.Status), nil)
		}
		return s.finalizeCancelled(ctx, stored)
	}
	if _, running := s.executing[id]; running {
		s.cancelled[id] = struct{}{}
		s.mu.Unlock()
		s.logger.Info("cancellation requested for running job; current attempt will finish",
			logging.String(logging.FieldJobID, id))
		return nil
	}
	s.untrackLocked(job)
	s.mu.Unlock()
	return s.finalizeCancelled(ctx, job)
}

func (s *Scheduler) finalizeCancelled(ctx context.Context, job *queue.Job) error {
	now := s.clock.Now().UTC()
	job.Status = queue.StatusFailed
	job.LastError = queue.CancelledReason
	job.ErrorClass = string(services.ClassPermanent)
	job.NextAttemptAt = nil
	job.CompletedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return services.Wrap(services.ErrTransient, "scheduler", "cancel", "persist cancellation", err)
	}
	s.logger.Info("job cancelled", logging.String(logging.FieldJobID, job.ID))
	return nil
}
