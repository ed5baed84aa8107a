package jobaccess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"tonearm/internal/fileutil"
	"tonearm/internal/ipc"
	"tonearm/internal/matching"
	"tonearm/internal/pipeline"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Access provides job operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]ipc.JobItem, error)
	Describe(ctx context.Context, id string) (*ipc.JobStatusResponse, error)
	Submit(ctx context.Context, path string, rescan bool) (ipc.JobItem, error)
	Cancel(ctx context.Context, id string) error
	Result(ctx context.Context, path string) (matching.Result, error)
	// Live reports whether a running daemon serves the requests.
	Live() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. Jobs it
// submits stay pending until a daemon starts and recovers them.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Live() bool { return true }

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.JobStats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]ipc.JobItem, error) {
	resp, err := a.client.JobList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *ipcAccess) Describe(_ context.Context, id string) (*ipc.JobStatusResponse, error) {
	return a.client.JobStatus(id)
}

func (a *ipcAccess) Submit(_ context.Context, path string, rescan bool) (ipc.JobItem, error) {
	resp, err := a.client.Submit(path, rescan)
	if err != nil {
		return ipc.JobItem{}, err
	}
	return resp.Job, nil
}

func (a *ipcAccess) Cancel(_ context.Context, id string) error {
	_, err := a.client.JobCancel(id)
	return err
}

func (a *ipcAccess) Result(_ context.Context, path string) (matching.Result, error) {
	resp, err := a.client.Result(path)
	if err != nil {
		return matching.Result{}, err
	}
	return resp.Result, nil
}

type storeAccess struct {
	store *queue.Store
}

func (a *storeAccess) Live() bool { return false }

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out, nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]ipc.JobItem, error) {
	var filters []queue.Status
	for _, s := range statuses {
		parsed, ok := queue.ParseStatus(s)
		if !ok {
			return nil, fmt.Errorf("unknown job status %q", s)
		}
		filters = append(filters, parsed)
	}
	jobs, err := a.store.ListJobs(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return ipc.FromJobs(jobs), nil
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*ipc.JobStatusResponse, error) {
	job, err := a.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "jobaccess", "describe", "no job "+id, nil)
	}
	resp := &ipc.JobStatusResponse{Job: ipc.FromJob(job)}
	if job.Status == queue.StatusSucceeded {
		result, err := a.Result(ctx, job.Path)
		switch {
		case err == nil:
			resp.Result = &result
		case !errors.Is(err, services.ErrNotFound):
			return nil, err
		}
	}
	return resp, nil
}

func (a *storeAccess) Submit(ctx context.Context, path string, rescan bool) (ipc.JobItem, error) {
	abs, err := fileutil.AbsPath(path)
	if err != nil {
		return ipc.JobItem{}, services.Wrap(services.ErrValidation, "jobaccess", "submit", "invalid path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ipc.JobItem{}, services.Wrap(services.ErrNotFound, "jobaccess", "submit", "no such file: "+abs, nil)
		}
		return ipc.JobItem{}, services.Wrap(services.ErrValidation, "jobaccess", "submit", "cannot access "+abs, err)
	}
	if !info.Mode().IsRegular() {
		return ipc.JobItem{}, services.Wrap(services.ErrValidation, "jobaccess", "submit", abs+" is not a regular file", nil)
	}
	fileID, err := fileutil.FileID(abs)
	if err != nil {
		return ipc.JobItem{}, services.Wrap(services.ErrValidation, "jobaccess", "submit", "derive file id", err)
	}
	job, _, err := a.store.CreateJob(ctx, &queue.Job{FileID: fileID, Path: abs, Rescan: rescan})
	if err != nil {
		return ipc.JobItem{}, err
	}
	return ipc.FromJob(job), nil
}

// Cancel fails a queued job in place. Without a daemon nothing is running,
// so every active job is still waiting for dispatch.
func (a *storeAccess) Cancel(ctx context.Context, id string) error {
	job, err := a.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "jobaccess", "cancel", "no job "+id, nil)
	}
	if job.Status.IsTerminal() {
		return services.Wrap(services.ErrValidation, "jobaccess", "cancel", "job "+id+" already "+string(job.Status), nil)
	}
	now := time.Now().UTC()
	job.Status = queue.StatusFailed
	job.LastError = queue.CancelledReason
	job.ErrorClass = string(services.ClassPermanent)
	job.NextAttemptAt = nil
	job.CompletedAt = &now
	return a.store.UpdateJob(ctx, job)
}

func (a *storeAccess) Result(ctx context.Context, path string) (matching.Result, error) {
	fileID, err := fileutil.FileID(path)
	if err != nil {
		return matching.Result{}, services.Wrap(services.ErrValidation, "jobaccess", "result", "resolve path", err)
	}
	record, err := a.store.GetMatchResult(ctx, fileID)
	if err != nil {
		return matching.Result{}, err
	}
	return pipeline.Decode(record)
}
