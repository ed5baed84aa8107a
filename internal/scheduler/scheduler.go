package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tonearm/internal/config"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Runner performs one attempt of a job.
type Runner interface {
	Run(ctx context.Context, job *queue.Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *queue.Job) error

func (f RunnerFunc) Run(ctx context.Context, job *queue.Job) error { return f(ctx, job) }

// EligibleFunc lists the paths a rescan should re-submit.
type EligibleFunc func(ctx context.Context) ([]string, error)

// Options tunes a Scheduler.
type Options struct {
	MaxConcurrentJobs int
	MaxRetries        int
	BackoffBase       time.Duration
	RescanInterval    time.Duration
	Eligible          EligibleFunc
	Clock             Clock
}

// OptionsFromConfig maps the scheduler section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		MaxRetries:        cfg.Scheduler.MaxRetries,
		BackoffBase:       cfg.RetryBackoffBase(),
		RescanInterval:    cfg.RescanInterval(),
	}
}

// Scheduler coordinates job submission, dispatch, and retries.
type Scheduler struct {
	store    *queue.Store
	runner   Runner
	logger   *slog.Logger
	clock    Clock
	eligible EligibleFunc

	maxConcurrent  int
	maxRetries     int
	backoffBase    time.Duration
	rescanInterval time.Duration

	permits chan struct{}
	wake    chan struct{}
	running atomic.Int64

	mu        sync.Mutex
	jobs      map[string]*queue.Job
	active    map[string]string
	ready     []string
	delayed   map[string]time.Time
	executing map[string]struct{}
	cancelled map[string]struct{}
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastRun   time.Time
}

// New constructs a scheduler. Zero option values fall back to the config
// defaults.
func New(store *queue.Store, runner Runner, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "init", "job store required", nil)
	}
	if runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "init", "runner required", nil)
	}
	defaults := config.Default()
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = defaults.Scheduler.MaxConcurrentJobs
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaults.RetryBackoffBase()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		store:          store,
		runner:         runner,
		logger:         logging.NewComponentLogger(logger, "scheduler"),
		clock:          opts.Clock,
		eligible:       opts.Eligible,
		maxConcurrent:  opts.MaxConcurrentJobs,
		maxRetries:     opts.MaxRetries,
		backoffBase:    opts.BackoffBase,
		rescanInterval: opts.RescanInterval,
		permits:        make(chan struct{}, opts.MaxConcurrentJobs),
		wake:           make(chan struct{}, 1),
		jobs:           make(map[string]*queue.Job),
		active:         make(map[string]string),
		delayed:        make(map[string]time.Time),
		executing:      make(map[string]struct{}),
		cancelled:      make(map[string]struct{}),
	}, nil
}

// Running returns the number of attempts currently executing. It never
// exceeds MaxConcurrentJobs.
func (s *Scheduler) Running() int {
	return int(s.running.Load())
}

// Stats summarizes the in-memory registry.
type Stats struct {
	Started       bool      `json:"started"`
	Running       int       `json:"running"`
	Ready         int       `json:"ready"`
	Delayed       int       `json:"delayed"`
	Tracked       int       `json:"tracked"`
	MaxConcurrent int       `json:"max_concurrent"`
	MaxRetries    int       `json:"max_retries"`
	LastError     string    `json:"last_error,omitempty"`
	LastRescan    time.Time `json:"last_rescan,omitzero"`
}

// Stats returns a snapshot of the registry.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{
		Started:       s.started,
		Running:       s.Running(),
		Ready:         len(s.ready),
		Delayed:       len(s.delayed),
		Tracked:       len(s.jobs),
		MaxConcurrent: s.maxConcurrent,
		MaxRetries:    s.maxRetries,
		LastRescan:    s.lastRun,
	}
	if s.lastErr != nil {
		stats.LastError = s.lastErr.Error()
	}
	return stats
}

// Job returns the persisted job with its attempt history.
func (s *Scheduler) Job(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "scheduler", "job", "no job "+id, nil)
	}
	return job, nil
}

// Jobs lists persisted jobs, optionally filtered by status.
func (s *Scheduler) Jobs(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	return s.store.ListJobs(ctx, statuses...)
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
