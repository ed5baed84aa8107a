package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tonearm/internal/config"
	"tonearm/internal/daemon"
	"tonearm/internal/daemonctl"
	"tonearm/internal/deps"
	"tonearm/internal/ipc"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	SocketPath  string
	Development bool
	// Stdout mirrors the log to the terminal as well as the log file.
	Stdout bool
}

// Run starts the tonearm daemon runtime loop and blocks until cmdCtx is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tonearm-%s.log", runID))
	outputs := []string{logPath}
	errorOutputs := []string{logPath}
	if opts.Stdout {
		outputs = append([]string{"stdout"}, outputs...)
		errorOutputs = append([]string{"stderr"}, errorOutputs...)
	}
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:              level,
		Format:             cfg.Logging.Format,
		OutputPaths:        outputs,
		ErrorOutputPaths:   errorOutputs,
		Development:        opts.Development,
		ComponentOverrides: cfg.Logging.ComponentOverrides,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, "tonearm-*.log", logPath, cfg.Logging.RetentionDays)
	pidPath := cfg.PIDPath()
	if err := daemonctl.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	components, err := Build(signalCtx, cfg, store, logger)
	if err != nil {
		return err
	}
	sched, err := NewScheduler(cfg, store, components, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	d, err := daemon.New(cfg, store, sched, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()
	d.AttachLookupCache(components.Cache)

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon will not process jobs until started"),
		)
	}

	<-signalCtx.Done()
	logger.Info("tonearm daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("acoustid_key_present", strings.TrimSpace(cfg.AcoustID.APIKey) != ""),
		logging.String("fingerprint_backend", cfg.Fingerprint.Backend),
	}
	for _, status := range deps.CheckBinaries(ctx, deps.Requirements(cfg)) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
