package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// attempt runs one execution of job and applies the retry policy.
func (s *Scheduler) attempt(ctx context.Context, job *queue.Job) {
	defer s.release(job)

	number := job.Attempts + 1
	attemptCtx := services.WithJobID(ctx, job.ID)
	attemptCtx = services.WithFileID(attemptCtx, job.FileID)
	attemptCtx = services.WithAttempt(attemptCtx, number)
	logger := logging.WithContext(attemptCtx, s.logger)
	persistCtx := context.WithoutCancel(ctx)

	if s.takeCancelled(job.ID) {
		s.mu.Lock()
		s.untrackLocked(job)
		s.mu.Unlock()
		if err := s.finalizeCancelled(persistCtx, job); err != nil {
			s.logPersistFailure(logger, err)
		}
		return
	}

	started := s.clock.Now().UTC()
	job.Status = queue.StatusRunning
	job.StartedAt = &started
	job.NextAttemptAt = nil
	if err := s.store.UpdateJob(ctx, job); err != nil {
		if ctx.Err() == nil {
			s.setLastError(err)
			s.logPersistFailure(logger, err)
			s.requeue(job, started.Add(s.backoffBase))
		}
		return
	}
	logger.Debug("attempt started", logging.Bool("rescan", job.Rescan))

	runErr := s.runner.Run(attemptCtx, job.Clone())
	finished := s.clock.Now().UTC()

	if runErr != nil && ctx.Err() != nil {
		s.interrupt(persistCtx, logger, job)
		return
	}

	job.Attempts = number
	record := queue.Attempt{
		Number:     number,
		StartedAt:  started,
		FinishedAt: finished,
	}

	cancelled := s.takeCancelled(job.ID)
	class := services.Classify(runErr)
	switch {
	case runErr == nil:
		job.Status = queue.StatusSucceeded
		job.LastError = ""
		job.ErrorClass = ""
		job.CompletedAt = &finished
		record.Outcome = queue.OutcomeSucceeded
	case errors.Is(runErr, services.ErrProvisional) && number > s.maxRetries && !cancelled:
		// Out of retries: the stored result stands.
		job.Status = queue.StatusSucceeded
		job.LastError = ""
		job.ErrorClass = ""
		job.CompletedAt = &finished
		record.Outcome = queue.OutcomeSucceeded
	case class == services.ClassTransient && number <= s.maxRetries && !cancelled:
		hint, _ := services.RetryAfter(runErr)
		delay := Backoff(s.backoffBase, number, hint, s.previousBackoff(persistCtx, job.ID, number))
		next := finished.Add(delay)
		job.Status = queue.StatusRetrying
		job.NextAttemptAt = &next
		job.LastError = runErr.Error()
		job.ErrorClass = string(class)
		record.Outcome = queue.OutcomeRetrying
		record.Backoff = delay
	default:
		job.Status = queue.StatusFailed
		job.LastError = failureMessage(runErr, cancelled)
		job.ErrorClass = string(class)
		job.CompletedAt = &finished
		record.Outcome = queue.OutcomeFailed
	}
	if runErr != nil {
		record.Error = runErr.Error()
		record.ErrorClass = string(class)
	}

	if err := s.store.AppendAttempt(persistCtx, job.ID, record); err != nil {
		s.logPersistFailure(logger, err)
	}

	// The status write and the in-memory bookkeeping happen under one lock so
	// a concurrent submit never sees a terminal job as still active.
	s.mu.Lock()
	persistErr := s.store.UpdateJob(persistCtx, job)
	if job.Status == queue.StatusRetrying {
		s.delayed[job.ID] = *job.NextAttemptAt
	} else {
		s.untrackLocked(job)
	}
	switch {
	case persistErr != nil:
		s.lastErr = persistErr
	case job.Status == queue.StatusFailed && runErr != nil:
		s.lastErr = runErr
	}
	s.mu.Unlock()

	if persistErr != nil {
		s.logPersistFailure(logger, persistErr)
	}
	s.logOutcome(logger, job, record, runErr)
}

// interrupt returns a job whose attempt was cut short by shutdown to pending.
func (s *Scheduler) interrupt(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	job.Status = queue.StatusPending
	job.StartedAt = nil
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logPersistFailure(logger, err)
	}
	logger.Info("attempt interrupted by shutdown; job returned to pending")
	s.mu.Lock()
	s.untrackLocked(job)
	s.mu.Unlock()
}

// previousBackoff returns the delay scheduled after the latest retried
// attempt of the job.
func (s *Scheduler) previousBackoff(ctx context.Context, jobID string, number int) time.Duration {
	if number <= 1 {
		return 0
	}
	history, err := s.store.AttemptHistory(ctx, jobID)
	if err != nil {
		return 0
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Backoff > 0 {
			return history[i].Backoff
		}
	}
	return 0
}

func (s *Scheduler) requeue(job *queue.Job, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed[job.ID] = at
}

func (s *Scheduler) takeCancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancelled[id]
	delete(s.cancelled, id)
	return ok
}

func failureMessage(err error, cancelled bool) string {
	if cancelled {
		if err == nil {
			return queue.CancelledReason
		}
		return queue.CancelledReason + ": " + err.Error()
	}
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func (s *Scheduler) logOutcome(logger *slog.Logger, job *queue.Job, record queue.Attempt, runErr error) {
	attrs := []logging.Attr{
		logging.String("outcome", record.Outcome),
		logging.Duration("elapsed", record.FinishedAt.Sub(record.StartedAt)),
	}
	switch job.Status {
	case queue.StatusSucceeded:
		if runErr != nil {
			attrs = append(attrs, logging.String("degraded", runErr.Error()))
			attrs = append(attrs, logging.DecisionAttrs("retry_policy", "accept", "retries exhausted; keeping stored result")...)
		}
		logger.Info("job succeeded", logging.Args(attrs...)...)
	case queue.StatusRetrying:
		attrs = append(attrs,
			logging.Duration("backoff", record.Backoff),
			logging.Error(runErr),
		)
		attrs = append(attrs, logging.DecisionAttrs("retry_policy", "retry", "transient failure with retries remaining")...)
		logger.Info("job will retry", logging.Args(attrs...)...)
	default:
		reason := "permanent failure"
		if record.ErrorClass == string(services.ClassTransient) {
			reason = "retries exhausted"
		}
		if strings.HasPrefix(job.LastError, queue.CancelledReason) {
			reason = "cancelled"
		}
		attrs = append(attrs,
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "inspect with tonearm job "+job.ID),
			logging.String(logging.FieldImpact, "file left without a new identification"),
			logging.Alert("job_failed"),
		)
		attrs = append(attrs, logging.DecisionAttrs("retry_policy", "fail", reason)...)
		logging.WarnWithContext(logger, "job failed", "job_failed", attrs...)
	}
}

func (s *Scheduler) logPersistFailure(logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down; job update skipped")
		return
	}
	logging.ErrorWithContext(logger, "failed to persist job state", "job_persist_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check database access with tonearm status"),
		logging.String(logging.FieldImpact, "job state may be stale until restart"),
	)
}
