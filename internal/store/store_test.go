package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DSN: "file::memory:", Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, JobHistoryEntry{
		MoleQueueID: 1, Queue: "local", Program: "sleep",
		OldState: "Accepted", NewState: "LocalQueued", RecordedAt: time.Now(),
	}))
	require.NoError(t, s.Record(ctx, JobHistoryEntry{
		MoleQueueID: 1, Queue: "local", Program: "sleep",
		OldState: "LocalQueued", NewState: "RunningLocal", RecordedAt: time.Now(),
	}))
	require.NoError(t, s.Record(ctx, JobHistoryEntry{
		MoleQueueID: 2, Queue: "local", Program: "echo",
		OldState: "Accepted", NewState: "LocalQueued", RecordedAt: time.Now(),
	}))

	entries, err := s.History(ctx, jobs.ID(1))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "RunningLocal", entries[1].NewState)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestPruneBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Record(ctx, JobHistoryEntry{
		MoleQueueID: 1, OldState: "Accepted", NewState: "LocalQueued", RecordedAt: old,
	}))
	require.NoError(t, s.Record(ctx, JobHistoryEntry{
		MoleQueueID: 1, OldState: "LocalQueued", NewState: "RunningLocal", RecordedAt: time.Now(),
	}))

	n, err := s.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := s.History(ctx, jobs.ID(1))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "RunningLocal", entries[0].NewState)
}

func TestObserverAdapterRecordsTransitions(t *testing.T) {
	s := newTestStore(t)
	logger := zap.NewNop()
	manager := jobs.NewManager(logger)

	id, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.Update(id, func(d *jobs.Data) {
		d.Queue, d.Program = "local", "sleep"
	}))

	manager.Subscribe(NewObserverAdapter(s, manager, logger))

	require.NoError(t, manager.SetState(id, jobs.Accepted))
	require.NoError(t, manager.SetState(id, jobs.LocalQueued))
	require.NoError(t, manager.SetState(id, jobs.RunningLocal))

	entries, err := s.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "local", entries[0].Queue)
	assert.Equal(t, "RunningLocal", entries[2].NewState)
}
