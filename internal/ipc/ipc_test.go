package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tonearm/internal/daemon"
	"tonearm/internal/ipc"
	"tonearm/internal/logging"
	"tonearm/internal/matching"
	"tonearm/internal/pipeline"
	"tonearm/internal/queue"
	"tonearm/internal/scheduler"
	"tonearm/internal/services"
	"tonearm/internal/testsupport"
)

type harness struct {
	client  *ipc.Client
	store   *queue.Store
	baseDir string
	release chan struct{}
}

// startServer wires a daemon whose runner stores a resolved result for most
// files. Files named "*.wav" block on release and then fail transiently.
func startServer(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	release := make(chan struct{})

	runner := scheduler.RunnerFunc(func(ctx context.Context, job *queue.Job) error {
		if strings.HasSuffix(job.Path, ".wav") {
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			return services.Wrap(services.ErrTransient, "test", "run", "upstream busy", nil)
		}
		chosen := matching.NewCandidate(matching.StrategyEmbeddedTags, "rec-1", 0.9)
		chosen.Title = "Title"
		chosen.Artist = "Artist"
		record, err := pipeline.Record(matching.Result{
			FileID:     job.FileID,
			Path:       job.Path,
			State:      matching.StateResolved,
			Strategy:   matching.StrategyEmbeddedTags,
			Chosen:     &chosen,
			Confidence: 0.9,
			ResolvedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return store.SaveMatchResult(ctx, record)
	})

	logger := logging.NewNop()
	opts := scheduler.OptionsFromConfig(cfg)
	opts.Eligible = scheduler.DefaultEligible(store, cfg.Paths.LibraryDir)
	sched, err := scheduler.New(store, runner, logger, opts)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	d, err := daemon.New(cfg, store, sched, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return &harness{client: client, store: store, baseDir: testsupport.BaseDir(cfg), release: release}
}

func waitForJobStatus(t *testing.T, client *ipc.Client, id string, want queue.Status) *ipc.JobStatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := client.JobStatus(id)
		if err != nil {
			t.Fatalf("JobStatus: %v", err)
		}
		if resp.Job.Status == string(want) {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, want %s", id, resp.Job.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIPCServerClient(t *testing.T) {
	h := startServer(t)

	startResp, err := h.client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	again, err := h.client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started || again.Message == "" {
		t.Fatalf("expected second start to be refused with a message, got %#v", again)
	}

	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || !status.Scheduler.Started {
		t.Fatalf("expected daemon to be running, got %#v", status)
	}
	if status.PID == 0 || status.LockPath == "" {
		t.Fatalf("expected pid and lock path, got %#v", status)
	}

	path := filepath.Join(h.baseDir, "library", "Artist - Title.flac")
	testsupport.WriteFile(t, path, 128)

	submitResp, err := h.client.Submit(path, false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if submitResp.Job.ID == "" || submitResp.Job.Path != path {
		t.Fatalf("unexpected submit response: %#v", submitResp.Job)
	}

	done := waitForJobStatus(t, h.client, submitResp.Job.ID, queue.StatusSucceeded)
	if done.Result == nil {
		t.Fatal("expected succeeded job to include its result")
	}
	if done.Result.Chosen == nil || done.Result.Chosen.RecordingID != "rec-1" {
		t.Fatalf("unexpected result: %#v", done.Result)
	}
	if len(done.Job.History) != 1 || done.Job.History[0].Outcome != queue.OutcomeSucceeded {
		t.Fatalf("unexpected history: %#v", done.Job.History)
	}

	resultResp, err := h.client.Result(path)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if resultResp.Result.Strategy != matching.StrategyEmbeddedTags {
		t.Fatalf("expected embedded tags strategy, got %s", resultResp.Result.Strategy)
	}

	listResp, err := h.client.JobList(nil)
	if err != nil {
		t.Fatalf("JobList failed: %v", err)
	}
	if len(listResp.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(listResp.Jobs))
	}
	failedResp, err := h.client.JobList([]string{string(queue.StatusFailed)})
	if err != nil {
		t.Fatalf("JobList failed filter: %v", err)
	}
	if len(failedResp.Jobs) != 0 {
		t.Fatalf("expected no failed jobs, got %d", len(failedResp.Jobs))
	}
	if _, err := h.client.JobList([]string{"bogus"}); err == nil {
		t.Fatal("expected unknown status filter to fail")
	}

	dbHealth, err := h.client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "tonearm.db") || dbHealth.TotalJobs != 1 {
		t.Fatalf("unexpected db health: %#v", dbHealth)
	}

	stopResp, err := h.client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status2.JobStats[string(queue.StatusSucceeded)] != 1 {
		t.Fatalf("expected one succeeded job in stats, got %#v", status2.JobStats)
	}
	if status2.LastJob == nil || status2.LastJob.ID != submitResp.Job.ID {
		t.Fatalf("expected last job %s, got %#v", submitResp.Job.ID, status2.LastJob)
	}
}

func TestIPCCancelRunningJob(t *testing.T) {
	h := startServer(t)
	if _, err := h.client.Start(); err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}

	path := filepath.Join(h.baseDir, "library", "long.wav")
	testsupport.WriteFile(t, path, 64)
	submitResp, err := h.client.Submit(path, false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitForJobStatus(t, h.client, submitResp.Job.ID, queue.StatusRunning)

	cancelResp, err := h.client.JobCancel(submitResp.Job.ID)
	if err != nil {
		t.Fatalf("JobCancel failed: %v", err)
	}
	if !cancelResp.Cancelled {
		t.Fatal("expected cancellation to be accepted")
	}
	close(h.release)

	done := waitForJobStatus(t, h.client, submitResp.Job.ID, queue.StatusFailed)
	if !strings.HasPrefix(done.Job.LastError, queue.CancelledReason) {
		t.Fatalf("expected cancelled reason, got %q", done.Job.LastError)
	}
	if done.Result != nil {
		t.Fatal("cancelled job should not carry a result")
	}

	if _, err := h.client.JobCancel(submitResp.Job.ID); err == nil {
		t.Fatal("expected cancelling a terminal job to fail")
	}
	if _, err := h.client.JobCancel(""); err == nil {
		t.Fatal("expected blank id to be rejected")
	}
}

func TestIPCSubmitErrorsAndRescan(t *testing.T) {
	h := startServer(t)

	if _, err := h.client.Submit(filepath.Join(h.baseDir, "missing.mp3"), false); err == nil {
		t.Fatal("expected missing file to be rejected")
	}
	if _, err := h.client.JobStatus("does-not-exist"); err == nil {
		t.Fatal("expected unknown job to fail")
	}

	// Rescan needs no running scheduler; the library holds one unseen file.
	path := filepath.Join(h.baseDir, "library", "Unseen.mp3")
	testsupport.WriteFile(t, path, 64)
	rescanResp, err := h.client.Rescan()
	if err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	if rescanResp.Considered != 1 || len(rescanResp.Submitted) != 1 {
		t.Fatalf("unexpected rescan report: %#v", rescanResp)
	}

	listResp, err := h.client.JobList([]string{string(queue.StatusPending)})
	if err != nil {
		t.Fatalf("JobList failed: %v", err)
	}
	if len(listResp.Jobs) != 1 || !listResp.Jobs[0].Rescan {
		t.Fatalf("expected one pending rescan job, got %#v", listResp.Jobs)
	}
}
