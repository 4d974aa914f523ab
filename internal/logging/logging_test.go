package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

func TestBuildLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		l, err := BuildLogger(level)
		require.NoError(t, err)
		require.NotNil(t, l)
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	r := NewRing(3)
	r.Add(Debug, "a", jobs.ID(1))
	r.Add(Debug, "b", jobs.ID(1))
	r.Add(Debug, "c", jobs.ID(1))
	r.Add(Debug, "d", jobs.ID(1)) // evicts "a"

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Message)
	assert.Equal(t, "c", all[1].Message)
	assert.Equal(t, "d", all[2].Message)
}

func TestRingByJob(t *testing.T) {
	r := NewRing(10)
	r.Add(Notification, "job1 msg", jobs.ID(1))
	r.Add(Notification, "job2 msg", jobs.ID(2))
	r.Add(Warning, "job1 msg2", jobs.ID(1))

	filtered := r.ByJob(jobs.ID(1))
	require.Len(t, filtered, 2)
	assert.Equal(t, "job1 msg", filtered[0].Message)
	assert.Equal(t, "job1 msg2", filtered[1].Message)
}

func TestObserverAdapterRecordsLifecycleEvents(t *testing.T) {
	logger := New(zap.NewNop(), 16)
	manager := jobs.NewManager(zap.NewNop())
	manager.Subscribe(NewObserverAdapter(logger))

	id, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.SetState(id, jobs.Accepted))

	entries := logger.Ring().ByJob(id)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Message, "job accepted")
	assert.Contains(t, entries[1].Message, "job state changed")
}
