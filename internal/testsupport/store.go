package testsupport

import (
	"context"
	"testing"

	"tonearm/internal/config"
	"tonearm/internal/fileutil"
	"tonearm/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for path using the provided store.
func NewJob(t testing.TB, store *queue.Store, path string) *queue.Job {
	t.Helper()

	fileID, err := fileutil.FileID(path)
	if err != nil {
		t.Fatalf("fileutil.FileID: %v", err)
	}
	job, _, err := store.CreateJob(context.Background(), &queue.Job{FileID: fileID, Path: path})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
