package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/clock"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/queue"
	"github.com/molequeue-io/molequeue/internal/queue/local"
	"github.com/molequeue-io/molequeue/internal/runner"
	"github.com/molequeue-io/molequeue/internal/server"
	"github.com/molequeue-io/molequeue/internal/transport"
)

type recordingObserver struct {
	NopObserver
	mu    chan struct{}
	seen  []jobs.State
	queue map[string][]string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{mu: make(chan struct{}, 64)}
}

func (o *recordingObserver) JobStateChanged(_ jobs.ID, _, new jobs.State) {
	o.seen = append(o.seen, new)
	o.mu <- struct{}{}
}

func (o *recordingObserver) QueueListUpdated(q map[string][]string) {
	o.queue = q
}

// newTestPair wires a Client directly to a running server.Server over a
// net.Pipe, exercising the full encode/decode/dispatch round trip without a
// real Unix socket.
func newTestPair(t *testing.T) (*Client, *jobs.Manager, *runner.Fake, *clock.Fake) {
	t.Helper()
	logger := zap.NewNop()

	jobManager := jobs.NewManager(logger)
	queueManager := queue.NewManager(logger)

	fakeRunner := runner.NewFake()
	fakeClock := clock.NewFake()
	localQ := local.New(local.Config{
		Name:     "local",
		MaxCores: 8,
		Programs: []program.Program{
			{Name: "sleep", Executable: "sleep", Arguments: "2", Syntax: program.Plain},
		},
	}, jobManager, fakeRunner, fakeClock, logger)
	require.NoError(t, queueManager.Add(localQ))
	localQ.Start(context.Background())
	t.Cleanup(localQ.Stop)

	srv := server.New(nil, jobManager, queueManager, t.TempDir(), logger)

	clientRaw, serverRaw := net.Pipe()
	t.Cleanup(func() { clientRaw.Close(); serverRaw.Close() })

	srv.ServeConnection(transport.Open(serverRaw, logger))

	c := New(transport.Open(clientRaw, logger), logger)
	c.Start()
	return c, jobManager, fakeRunner, fakeClock
}

func TestSubmitAndLookupRoundTrip(t *testing.T) {
	c, jobManager, fakeRunner, fakeClock := newTestPair(t)

	obs := newRecordingObserver()
	c.Subscribe(obs)

	queues, err := c.RequestQueueListUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep"}, queues["local"])

	result, err := c.SubmitJobRequest(context.Background(), jobs.Data{
		Queue:   "local",
		Program: "sleep",
	})
	require.NoError(t, err)
	assert.NotZero(t, result.MoleQueueID)
	assert.NotEmpty(t, result.WorkingDirectory)

	data, ok := jobManager.Lookup(result.MoleQueueID)
	require.True(t, ok)
	assert.Equal(t, jobs.LocalQueued, data.State)

	looked, err := c.LookupJobRequest(context.Background(), result.MoleQueueID)
	require.NoError(t, err)
	assert.Equal(t, "local", looked.Queue)

	fakeRunner.Enqueue(runner.Result{ExitCode: 0})
	fakeClock.Advance(5 * time.Second)

	for len(obs.seen) < 3 {
		select {
		case <-obs.mu:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notifications, got %v", obs.seen)
		}
	}
	assert.Equal(t, []jobs.State{jobs.LocalQueued, jobs.RunningLocal, jobs.Finished}, obs.seen)
}

func TestCancelUnknownJobReturnsTypedError(t *testing.T) {
	c, _, _, _ := newTestPair(t)

	err := c.CancelJobRequest(context.Background(), jobs.ID(9999))
	require.Error(t, err)
}
