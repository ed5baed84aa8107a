package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tonearm/internal/config"
	"tonearm/internal/deps"
	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/matching"
	"tonearm/internal/pipeline"
	"tonearm/internal/preflight"
	"tonearm/internal/queue"
	"tonearm/internal/scheduler"
	"tonearm/internal/services"
)

// Daemon owns the scheduler lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	scheduler *scheduler.Scheduler
	logPath   string

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc

	checkDeps func(context.Context, *config.Config) []deps.Status
	cache     LookupCache
}

// LookupCache is the maintenance surface of the daemon's fingerprint lookup
// cache.
type LookupCache interface {
	Count() int
	Prune() (int, error)
	Clear() error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Scheduler    scheduler.Stats
	JobStats     map[queue.Status]int
	LastJob      *queue.Job
	DatabasePath string
	LockFilePath string
	LogPath      string
	Dependencies []deps.Status
	PID          int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, sched *scheduler.Scheduler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:     store,
		scheduler: sched,
		logPath:   filepath.Join(cfg.Paths.LogDir, "tonearm.log"),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		checkDeps: preflight.CheckSystemDeps,
	}, nil
}

// Start acquires the daemon lock and starts the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tonearm daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("tonearm daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the scheduler and releases the daemon lock. Attempts in flight
// return to pending.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Remove the lock file manually if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("tonearm daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the scheduler is dispatching.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Submit queues path for identification. With rescan set, a stored
// fingerprint is ignored and recomputed.
func (d *Daemon) Submit(ctx context.Context, path string, rescan bool) (*queue.Job, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "submit", "path is required", nil)
	}
	var (
		id  string
		err error
	)
	if rescan {
		id, err = d.scheduler.SubmitRescan(ctx, trimmed)
	} else {
		id, err = d.scheduler.Submit(ctx, trimmed)
	}
	if err != nil {
		return nil, err
	}
	job, err := d.scheduler.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	d.logger.Info("file queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldFileID, job.FileID),
		logging.String("path", job.Path),
		logging.Bool("rescan", rescan),
	)
	return job, nil
}

// Job returns a job with its attempt history.
func (d *Daemon) Job(ctx context.Context, id string) (*queue.Job, error) {
	return d.scheduler.Job(ctx, strings.TrimSpace(id))
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	return d.scheduler.Jobs(ctx, statuses...)
}

// Cancel cancels a queued or running job.
func (d *Daemon) Cancel(ctx context.Context, id string) error {
	if err := d.scheduler.Cancel(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	d.logger.Info("job cancel requested", logging.String(logging.FieldJobID, id))
	return nil
}

// Rescan resubmits every file the eligibility policy selects.
func (d *Daemon) Rescan(ctx context.Context) (scheduler.RescanReport, error) {
	return d.scheduler.TriggerRescan(ctx)
}

// Result returns the latest stored resolution for path.
func (d *Daemon) Result(ctx context.Context, path string) (matching.Result, error) {
	fileID, err := fileutil.FileID(path)
	if err != nil {
		return matching.Result{}, services.Wrap(services.ErrValidation, "daemon", "result", "resolve path", err)
	}
	record, err := d.store.GetMatchResult(ctx, fileID)
	if err != nil {
		return matching.Result{}, err
	}
	return pipeline.Decode(record)
}

// AttachLookupCache routes cache maintenance requests to the cache the
// resolver is using.
func (d *Daemon) AttachLookupCache(cache LookupCache) {
	d.mu.Lock()
	d.cache = cache
	d.mu.Unlock()
}

func (d *Daemon) lookupCache() (LookupCache, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "lookup cache", "no lookup cache attached", nil)
	}
	return d.cache, nil
}

// PruneLookupCache drops expired lookups and returns how many were removed.
func (d *Daemon) PruneLookupCache() (int, error) {
	cache, err := d.lookupCache()
	if err != nil {
		return 0, err
	}
	removed, err := cache.Prune()
	if err != nil {
		return removed, err
	}
	d.logger.Info("lookup cache pruned",
		logging.String(logging.FieldEventType, "lookupcache_pruned"),
		logging.Int("removed", removed))
	return removed, nil
}

// ClearLookupCache empties the lookup cache and returns how many entries it
// held.
func (d *Daemon) ClearLookupCache() (int, error) {
	cache, err := d.lookupCache()
	if err != nil {
		return 0, err
	}
	count := cache.Count()
	if err := cache.Clear(); err != nil {
		return 0, err
	}
	d.logger.Info("lookup cache cleared",
		logging.String(logging.FieldEventType, "lookupcache_cleared"),
		logging.Int("removed", count))
	return count, nil
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Scheduler:    d.scheduler.Stats(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		PID:          os.Getpid(),
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.JobStats = stats
	} else {
		logging.WarnWithContext(d.logger, "job stats unavailable", "daemon_status_degraded",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Run tonearm status again or check database health"),
		)
	}
	if jobs, err := d.store.ListJobs(ctx); err == nil && len(jobs) > 0 {
		last := jobs[0]
		for _, job := range jobs[1:] {
			if job.UpdatedAt.After(last.UpdatedAt) {
				last = job
			}
		}
		status.LastJob = last
	}
	if d.checkDeps != nil {
		status.Dependencies = d.checkDeps(ctx, d.cfg)
	}
	return status
}
