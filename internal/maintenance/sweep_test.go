package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/store"
)

func newTestSweeper(t *testing.T, cfg Config) (*Sweeper, *jobs.Manager, *store.Store) {
	t.Helper()
	logger := zap.NewNop()
	jobManager := jobs.NewManager(logger)
	st, err := store.Open(store.Config{DSN: "file::memory:", Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sweeper, err := New(cfg, jobManager, st, logger)
	require.NoError(t, err)
	return sweeper, jobManager, st
}

func makeTerminalJob(t *testing.T, jobManager *jobs.Manager, st *store.Store, workDir string, finishedAt time.Time) jobs.ID {
	t.Helper()
	id, _, err := jobManager.NewJob()
	require.NoError(t, err)
	require.NoError(t, jobManager.Update(id, func(d *jobs.Data) {
		d.Queue, d.Program = "local", "sleep"
		d.LocalWorkingDirectory = workDir
	}))
	require.NoError(t, jobManager.SetState(id, jobs.Accepted))
	require.NoError(t, jobManager.SetState(id, jobs.LocalQueued))
	require.NoError(t, jobManager.SetState(id, jobs.RunningLocal))
	require.NoError(t, jobManager.SetState(id, jobs.Finished))

	require.NoError(t, st.Record(context.Background(), store.JobHistoryEntry{
		MoleQueueID: uint64(id), Queue: "local", Program: "sleep",
		OldState: "RunningLocal", NewState: "Finished", RecordedAt: finishedAt,
	}))
	return id
}

func TestSweepPrunesOldCompletedJobs(t *testing.T) {
	cfg := Config{JobRetention: 24 * time.Hour, HistoryRetention: 24 * time.Hour, Interval: time.Minute}
	sweeper, jobManager, st := newTestSweeper(t, cfg)

	oldDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "marker"), []byte("x"), 0o644))
	oldID := makeTerminalJob(t, jobManager, st, oldDir, time.Now().Add(-48*time.Hour))

	freshDir := t.TempDir()
	freshID := makeTerminalJob(t, jobManager, st, freshDir, time.Now())

	sweeper.RunNow(context.Background())

	_, ok := jobManager.Lookup(oldID)
	assert.False(t, ok, "old job should have been removed")
	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err), "old job's working directory should have been removed")

	_, ok = jobManager.Lookup(freshID)
	assert.True(t, ok, "fresh job should be untouched")
	_, err = os.Stat(freshDir)
	assert.NoError(t, err, "fresh job's working directory should remain")
}

func TestSweepPrunesOldHistoryRows(t *testing.T) {
	cfg := Config{JobRetention: 24 * time.Hour, HistoryRetention: time.Hour, Interval: time.Minute}
	sweeper, jobManager, st := newTestSweeper(t, cfg)

	id, _, err := jobManager.NewJob()
	require.NoError(t, err)
	require.NoError(t, st.Record(context.Background(), store.JobHistoryEntry{
		MoleQueueID: uint64(id), OldState: "Accepted", NewState: "LocalQueued",
		RecordedAt: time.Now().Add(-48 * time.Hour),
	}))

	sweeper.RunNow(context.Background())

	entries, err := st.History(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
