package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tonearm/internal/daemon"
	"tonearm/internal/logging"
	"tonearm/internal/lookupcache"
	"tonearm/internal/queue"
	"tonearm/internal/scheduler"
	"tonearm/internal/services"
	"tonearm/internal/testsupport"
)

func newDaemon(t *testing.T, runner scheduler.Runner) (*daemon.Daemon, *queue.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched, err := scheduler.New(store, runner, logging.NewNop(), scheduler.OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	d, err := daemon.New(cfg, store, sched, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d, store, testsupport.BaseDir(cfg)
}

func succeed(context.Context, *queue.Job) error { return nil }

func TestDaemonStartStop(t *testing.T) {
	d, _, _ := newDaemon(t, scheduler.RunnerFunc(succeed))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if !status.Scheduler.Started {
		t.Fatal("expected scheduler to be started")
	}
	if status.PID == 0 || status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("expected paths and pid in status, got %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status.Scheduler.Started {
		t.Fatal("expected scheduler to be stopped")
	}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	build := func() *daemon.Daemon {
		sched, err := scheduler.New(store, scheduler.RunnerFunc(succeed), logging.NewNop(), scheduler.OptionsFromConfig(cfg))
		if err != nil {
			t.Fatalf("scheduler.New: %v", err)
		}
		d, err := daemon.New(cfg, store, sched, logging.NewNop())
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		t.Cleanup(d.Stop)
		return d
	}
	first, second := build(), build()
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to be rejected by the lock")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestDaemonSubmitRunsJob(t *testing.T) {
	d, _, base := newDaemon(t, scheduler.RunnerFunc(succeed))
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := filepath.Join(base, "library", "Artist - Title.flac")
	testsupport.WriteFile(t, path, 64)

	job, err := d.Submit(ctx, path, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Path != path {
		t.Fatalf("expected path %q, got %q", path, job.Path)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := d.Job(ctx, job.ID)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if got.Status == queue.StatusSucceeded {
			if len(got.History) != 1 {
				t.Fatalf("expected one attempt, got %d", len(got.History))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not succeed, status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	jobs, err := d.ListJobs(ctx, []queue.Status{queue.StatusSucceeded})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("expected the submitted job in succeeded list, got %v", jobs)
	}
	if last := d.Status(ctx).LastJob; last == nil || last.ID != job.ID {
		t.Fatalf("expected last job %s, got %v", job.ID, last)
	}
}

func TestDaemonSubmitValidation(t *testing.T) {
	d, _, base := newDaemon(t, scheduler.RunnerFunc(succeed))
	ctx := context.Background()

	if _, err := d.Submit(ctx, "  ", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank path, got %v", err)
	}
	if _, err := d.Submit(ctx, filepath.Join(base, "missing.mp3"), false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing file, got %v", err)
	}
	if _, err := d.Job(ctx, "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestDaemonCancelQueuedJob(t *testing.T) {
	d, _, base := newDaemon(t, scheduler.RunnerFunc(succeed))
	ctx := context.Background()

	path := filepath.Join(base, "library", "queued.mp3")
	testsupport.WriteFile(t, path, 64)
	job, err := d.Submit(ctx, path, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, err := d.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if got.Status != queue.StatusFailed || got.LastError != queue.CancelledReason {
		t.Fatalf("expected cancelled failure, got %s %q", got.Status, got.LastError)
	}
}

func TestDaemonResultNotFound(t *testing.T) {
	d, _, base := newDaemon(t, scheduler.RunnerFunc(succeed))
	_, err := d.Result(context.Background(), filepath.Join(base, "never.flac"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDaemonDatabaseHealth(t *testing.T) {
	d, _, _ := newDaemon(t, scheduler.RunnerFunc(succeed))
	health, err := d.DatabaseHealth(context.Background())
	if err != nil {
		t.Fatalf("DatabaseHealth: %v", err)
	}
	if !health.DatabaseExists || !health.IntegrityCheck || len(health.MissingTables) != 0 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestDaemonLookupCacheMaintenance(t *testing.T) {
	d, _, base := newDaemon(t, scheduler.RunnerFunc(succeed))
	if _, err := d.ClearLookupCache(); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a cache, got %v", err)
	}

	cache := lookupcache.New[int](filepath.Join(base, "cache.json"), time.Hour, nil)
	for _, key := range []string{"a", "b"} {
		if err := cache.Store(key, 1); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	d.AttachLookupCache(cache)

	removed, err := d.PruneLookupCache()
	if err != nil || removed != 0 {
		t.Fatalf("PruneLookupCache = %d, %v", removed, err)
	}
	removed, err = d.ClearLookupCache()
	if err != nil || removed != 2 {
		t.Fatalf("ClearLookupCache = %d, %v", removed, err)
	}
	if cache.Count() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Count())
	}
}
