package scheduler

import (
	"context"
	"errors"
	"time"

	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Start recovers persisted work and begins dispatching.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.mu.Unlock()

	if err := s.recover(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.dispatch(runCtx)
	if s.rescanInterval > 0 && s.eligible != nil {
		s.wg.Add(1)
		go s.rescanLoop(runCtx)
	}
	s.logger.Info("scheduler started",
		logging.Int("max_concurrent_jobs", s.maxConcurrent),
		logging.Int("max_retries", s.maxRetries),
		logging.Duration("retry_backoff_base", s.backoffBase),
		logging.Duration("rescan_interval", s.rescanInterval),
		logging.Int("recovered_jobs", len(s.jobs)),
	)
	s.signal()
	return nil
}

// Stop halts dispatch and waits for running attempts to return. Attempts
// interrupted by the shutdown are returned to pending without counting.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.started = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// recover resets attempts orphaned by a crash and reloads active jobs.
func (s *Scheduler) recover(ctx context.Context) error {
	reset, err := s.store.ResetRunning(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "scheduler", "recover", "reset running jobs", err)
	}
	if reset > 0 {
		s.logger.Info("returned interrupted jobs to pending", logging.Int64("count", reset))
	}
	jobs, err := s.store.RecoverableJobs(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "scheduler", "recover", "load recoverable jobs", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if _, ok := s.jobs[job.ID]; ok {
			continue
		}
		s.trackLocked(job)
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		s.promoteDue()
		s.launchReady(ctx)

		var timer <-chan time.Time
		if due, ok := s.nextDue(); ok {
			timer = s.clock.After(due)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer:
		}
	}
}

// promoteDue moves retries whose backoff elapsed onto the ready queue.
func (s *Scheduler) promoteDue() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, due := range s.delayed {
		if due.After(now) {
			continue
		}
		delete(s.delayed, id)
		s.ready = append(s.ready, id)
	}
}

func (s *Scheduler) nextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		next  time.Time
		found bool
	)
	for _, due := range s.delayed {
		if !found || due.Before(next) {
			next = due
			found = true
		}
	}
	return next, found
}

func (s *Scheduler) launchReady(ctx context.Context) {
	for {
		select {
		case s.permits <- struct{}{}:
		default:
			return
		}
		job := s.popReady()
		if job == nil {
			<-s.permits
			return
		}
		s.running.Add(1)
		s.wg.Add(1)
		go s.attempt(ctx, job)
	}
}

func (s *Scheduler) popReady() *queue.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		s.executing[id] = struct{}{}
		return job
	}
	return nil
}

func (s *Scheduler) release(job *queue.Job) {
	s.mu.Lock()
	delete(s.executing, job.ID)
	s.mu.Unlock()
	s.running.Add(-1)
	<-s.permits
	s.wg.Done()
	s.signal()
}
