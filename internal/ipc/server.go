package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"tonearm/internal/daemon"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// ServiceName is the JSON-RPC service prefix for every method.
const ServiceName = "Tonearm"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger.With(logging.String(logging.FieldComponent, "ipc")), ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun tonearm stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.Scheduler = status.Scheduler
	resp.LastError = status.Scheduler.LastError
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.LogPath = status.LogPath
	resp.PID = status.PID
	resp.JobStats = make(map[string]int, len(status.JobStats))
	for k, v := range status.JobStats {
		resp.JobStats[string(k)] = v
	}
	if status.LastJob != nil {
		item := FromJob(status.LastJob)
		resp.LastJob = &item
	}
	resp.Dependencies = append(resp.Dependencies, status.Dependencies...)
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	job, err := s.daemon.Submit(s.ctx, req.Path, req.Rescan)
	if err != nil {
		return err
	}
	resp.Job = FromJob(job)
	return nil
}

func (s *service) JobStatus(req JobStatusRequest, resp *JobStatusResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("job id is required")
	}
	job, err := s.daemon.Job(s.ctx, id)
	if err != nil {
		return err
	}
	resp.Job = FromJob(job)
	if job.Status == queue.StatusSucceeded {
		result, err := s.daemon.Result(s.ctx, job.Path)
		switch {
		case err == nil:
			resp.Result = &result
		case !errors.Is(err, services.ErrNotFound):
			return err
		}
	}
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown job status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.daemon.ListJobs(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Jobs = FromJobs(jobs)
	return nil
}

func (s *service) JobCancel(req JobCancelRequest, resp *JobCancelResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("job id is required")
	}
	if err := s.daemon.Cancel(s.ctx, id); err != nil {
		return err
	}
	resp.Cancelled = true
	s.logger.Info("job cancelled via IPC",
		logging.String(logging.FieldEventType, "job_cancel"),
		logging.String(logging.FieldJobID, id))
	return nil
}

func (s *service) Rescan(_ RescanRequest, resp *RescanResponse) error {
	s.logger.Debug("rescan requested")
	report, err := s.daemon.Rescan(s.ctx)
	if err != nil {
		return err
	}
	resp.Considered = report.Considered
	resp.Submitted = append([]string{}, report.Submitted...)
	resp.Skipped = report.Skipped
	resp.Errors = report.Errors
	s.logger.Info("rescan triggered via IPC",
		logging.String(logging.FieldEventType, "rescan"),
		logging.Int("submitted_count", len(report.Submitted)))
	return nil
}

func (s *service) CachePrune(_ CacheRequest, resp *CacheResponse) error {
	removed, err := s.daemon.PruneLookupCache()
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) CacheClear(_ CacheRequest, resp *CacheResponse) error {
	removed, err := s.daemon.ClearLookupCache()
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Result(req ResultRequest, resp *ResultResponse) error {
	result, err := s.daemon.Result(s.ctx, req.Path)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TablesPresent = append(resp.TablesPresent, health.TablesPresent...)
	resp.MissingTables = append(resp.MissingTables, health.MissingTables...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalJobs = health.TotalJobs
	resp.Error = health.Error
	return err
}
