package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tonearm/internal/acoustid"
	"tonearm/internal/config"
	"tonearm/internal/daemon"
	"tonearm/internal/ipc"
	"tonearm/internal/logging"
	"tonearm/internal/lookupcache"
	"tonearm/internal/queue"
	"tonearm/internal/scheduler"
	"tonearm/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
	cache      *lookupcache.Cache[[]acoustid.Match]
	cancel     context.CancelFunc
}

type cliEnvOption func(*cliEnvSettings)

type cliEnvSettings struct {
	runner       scheduler.Runner
	persistCache bool
}

func withRunner(runner scheduler.Runner) cliEnvOption {
	return func(s *cliEnvSettings) { s.runner = runner }
}

func withPersistedCache() cliEnvOption {
	return func(s *cliEnvSettings) { s.persistCache = true }
}

func setupCLITestEnv(t *testing.T, opts ...cliEnvOption) *cliTestEnv {
	t.Helper()

	settings := cliEnvSettings{
		runner: scheduler.RunnerFunc(func(context.Context, *queue.Job) error { return nil }),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, configPath := newCLIConfig(t)
	cfg.AcoustID.PersistCache = settings.persistCache
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	schedOpts := scheduler.OptionsFromConfig(cfg)
	schedOpts.Eligible = scheduler.DefaultEligible(store, cfg.Paths.LibraryDir)
	sched, err := scheduler.New(store, settings.runner, logger, schedOpts)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	d, err := daemon.New(cfg, store, sched, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	cachePath := ""
	if settings.persistCache {
		cachePath = cfg.LookupCachePath()
	}
	cache := lookupcache.New[[]acoustid.Match](cachePath, cfg.CacheTTL(), logger)
	d.AttachLookupCache(cache)

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    testsupport.BaseDir(cfg),
		cache:      cache,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return env
}

// newCLIConfig prepares an isolated HOME and a config whose directories all
// exist, without starting a daemon.
func newCLIConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("ACOUSTID_API_KEY", "")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.LibraryDir, 0o755); err != nil {
		t.Fatalf("mkdir library: %v", err)
	}
	configPath := filepath.Join(homeDir, ".config", "tonearm", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\ndata_dir = %q\nlog_dir = %q\nlibrary_dir = %q\ncache_dir = %q\n\n",
		cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.LibraryDir, cfg.Paths.CacheDir)
	fmt.Fprintf(&b, "[acoustid]\napi_key = %q\nbase_url = %q\npersist_cache = %t\n\n",
		cfg.AcoustID.APIKey, cfg.AcoustID.BaseURL, cfg.AcoustID.PersistCache)
	fmt.Fprintf(&b, "[fingerprint]\nbackend = %q\nffmpeg_binary = %q\nffprobe_binary = %q\n\n",
		cfg.Fingerprint.Backend, cfg.Fingerprint.FFmpegBinary, cfg.Fingerprint.FFprobeBinary)
	fmt.Fprintf(&b, "[scheduler]\nmax_concurrent_jobs = %d\nmax_retries = %d\nretry_backoff_base_seconds = %d\n",
		cfg.Scheduler.MaxConcurrentJobs, cfg.Scheduler.MaxRetries, cfg.Scheduler.RetryBackoffBaseSeconds)
	if cfg.Catalog.SeedPath != "" {
		fmt.Fprintf(&b, "\n[catalog]\nseed_path = %q\n", cfg.Catalog.SeedPath)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func requireContains(t *testing.T, output, substring string) {
	t.Helper()
	if !strings.Contains(output, substring) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", substring, output)
	}
}

func requireNotContains(t *testing.T, output, substring string) {
	t.Helper()
	if strings.Contains(output, substring) {
		t.Fatalf("expected output to omit %q\noutput:\n%s", substring, output)
	}
}
