package jobaccess_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonearm/internal/ipc"
	"tonearm/internal/jobaccess"
	"tonearm/internal/matching"
	"tonearm/internal/pipeline"
	"tonearm/internal/queue"
	"tonearm/internal/services"
	"tonearm/internal/testsupport"
)

func TestFallbackToStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dialErr := errors.New("connection refused")
	session, err := jobaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, dialErr },
		func() (*queue.Store, error) { return queue.Open(cfg) },
	)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	assert.False(t, session.Access.Live())
	assert.ErrorIs(t, session.DialErr, dialErr)
}

func TestFallbackWithoutStoreOpener(t *testing.T) {
	_, err := jobaccess.OpenWithFallback(nil, nil)
	assert.Error(t, err)
}

func TestStoreAccessLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := jobaccess.NewStoreAccess(store)
	ctx := context.Background()

	path := filepath.Join(testsupport.BaseDir(cfg), "library", "Artist - Song.mp3")
	testsupport.WriteFile(t, path, 32)

	job, err := access.Submit(ctx, path, true)
	require.NoError(t, err)
	assert.Equal(t, string(queue.StatusPending), job.Status)
	assert.True(t, job.Rescan)

	again, err := access.Submit(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID, "active job is reused")

	stats, err := access.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[string(queue.StatusPending)])

	listed, err := access.List(ctx, []string{"pending"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = access.List(ctx, []string{"nope"})
	assert.Error(t, err)

	require.NoError(t, access.Cancel(ctx, job.ID))
	detail, err := access.Describe(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(queue.StatusFailed), detail.Job.Status)
	assert.Equal(t, queue.CancelledReason, detail.Job.LastError)
	assert.Nil(t, detail.Result)

	assert.ErrorIs(t, access.Cancel(ctx, job.ID), services.ErrValidation)
	assert.ErrorIs(t, access.Cancel(ctx, "missing"), services.ErrNotFound)
	_, err = access.Describe(ctx, "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestStoreAccessSubmitValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	access := jobaccess.NewStoreAccess(testsupport.MustOpenStore(t, cfg))
	ctx := context.Background()

	_, err := access.Submit(ctx, filepath.Join(testsupport.BaseDir(cfg), "missing.flac"), false)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = access.Submit(ctx, testsupport.BaseDir(cfg), false)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestStoreAccessDescribeIncludesResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	access := jobaccess.NewStoreAccess(store)
	ctx := context.Background()

	path := filepath.Join(testsupport.BaseDir(cfg), "library", "Done.flac")
	testsupport.WriteFile(t, path, 32)
	job := testsupport.NewJob(t, store, path)
	job.Status = queue.StatusSucceeded
	job.Attempts = 1
	require.NoError(t, store.UpdateJob(ctx, job))

	record, err := pipeline.Record(matching.Result{
		FileID:     job.FileID,
		Path:       path,
		State:      matching.StateUnresolved,
		Strategy:   matching.StrategyNone,
		ResolvedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveMatchResult(ctx, record))

	detail, err := access.Describe(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Result)
	assert.Equal(t, matching.StateUnresolved, detail.Result.State)

	result, err := access.Result(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, job.FileID, result.FileID)
}
