package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docket-crawler/internal/joblog"
	"github.com/JakeFAU/docket-crawler/internal/storage/memory"
	"github.com/JakeFAU/docket-crawler/internal/store"
)

// TestStoreSinkPersistsEntries ensures every entry in a batch becomes a job_logs row.
func TestStoreSinkPersistsEntries(t *testing.T) {
	t.Parallel()

	repo := memory.NewCatalogStore()
	sink := NewStoreSink(repo, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []joblog.Entry{
		{Type: joblog.TypeDiscovery, Status: joblog.StatusInfo, Details: "started", TS: now},
		{Type: joblog.TypeDiscovery, Status: joblog.StatusSuccess, Details: "done", TS: now.Add(time.Second)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	logs := repo.JobLogs()
	require.Len(t, logs, 2)
	require.Equal(t, "SUCCESS", logs[1].Status)
	require.Equal(t, "done", logs[1].Details)
	require.True(t, logs[0].CreatedAt.Equal(now))
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingRepo{}, nil)
	err := sink.Consume(context.Background(), []joblog.Entry{
		{Type: joblog.TypeBatch, Status: joblog.StatusError, Details: "boom", TS: time.Now()},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "append job logs")
}

func TestStoreSinkEmptyBatch(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingRepo{}, nil)
	require.NoError(t, sink.Consume(context.Background(), nil))
	require.NoError(t, sink.Close(context.Background()))
}

type failingRepo struct{}

func (failingRepo) AppendJobLogs(context.Context, []store.JobLog) error {
	return errors.New("db down")
}
