package server

import (
	"context"
	"encoding/json"
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
	"github.com/molequeue-io/molequeue/internal/rpc"
	"github.com/molequeue-io/molequeue/internal/runner"
	"github.com/molequeue-io/molequeue/internal/transport"
)

type testRig struct {
	srv       *Server
	client    *transport.Connection
	received  chan []byte
	jobs      *jobs.Manager
	queues    *queue.Manager
	localQ    *local.Queue
	fakeRun   *runner.Fake
	fakeClock *clock.Fake
	localDir  string
}

func newTestRig(t *testing.T) *testRig {
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

	localDir := t.TempDir()
	srv := New(nil, jobManager, queueManager, localDir, logger)

	clientRaw, serverRaw := net.Pipe()
	t.Cleanup(func() { clientRaw.Close(); serverRaw.Close() })

	serverConn := transport.Open(serverRaw, logger)
	srv.ServeConnection(serverConn)

	client := transport.Open(clientRaw, logger)
	received := make(chan []byte, 32)
	client.Start(func(p []byte) { received <- p })

	return &testRig{
		srv: srv, client: client, received: received,
		jobs: jobManager, queues: queueManager, localQ: localQ,
		fakeRun: fakeRunner, fakeClock: fakeClock, localDir: localDir,
	}
}

func (r *testRig) sendRequest(t *testing.T, id uint64, method string, params any) {
	t.Helper()
	raw, err := rpc.EncodeRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, r.client.Send(raw))
}

func (r *testRig) nextPacket(t *testing.T) rpc.Packet {
	t.Helper()
	select {
	case raw := <-r.received:
		p, err := rpc.Decode(raw, false)
		require.NoError(t, err)
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return rpc.Packet{}
	}
}

// Spec §8 scenario 1: a local sleep job's submitting client observes
// exactly three jobStateChanged messages for None -> Accepted ->
// LocalQueued -> RunningLocal -> Finished. submitJob replies before any of
// them, and the two transitions Queue.Submit drives synchronously
// (Accepted, LocalQueued) arrive coalesced into one notification right
// after the reply, since the session isn't registered as the job's owner
// until Submit returns.
func TestSubmitJobRepliesThenNotifies(t *testing.T) {
	r := newTestRig(t)

	r.sendRequest(t, 1, "submitJob", map[string]any{
		"queue":   "local",
		"program": "sleep",
	})

	reply := r.nextPacket(t)
	require.Equal(t, rpc.KindResult, reply.Kind)

	var result struct {
		MoleQueueID      uint64 `json:"moleQueueId"`
		WorkingDirectory string `json:"workingDirectory"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.NotZero(t, result.MoleQueueID)
	assert.NotEmpty(t, result.WorkingDirectory)

	id := jobs.ID(result.MoleQueueID)
	data, ok := r.jobs.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, jobs.LocalQueued, data.State)

	coalesced := r.nextPacket(t)
	require.Equal(t, rpc.KindNotification, coalesced.Kind)
	require.Equal(t, "jobStateChanged", coalesced.Method)
	var coalescedParams map[string]any
	require.NoError(t, json.Unmarshal(coalesced.Params, &coalescedParams))
	assert.Equal(t, "None", coalescedParams["oldState"])
	assert.Equal(t, "LocalQueued", coalescedParams["newState"])

	r.fakeRun.Enqueue(runner.Result{ExitCode: 0})
	r.fakeClock.Advance(5 * time.Second)

	var notifications []map[string]any
	for len(notifications) < 2 {
		p := r.nextPacket(t)
		require.Equal(t, rpc.KindNotification, p.Kind)
		require.Equal(t, "jobStateChanged", p.Method)
		var params map[string]any
		require.NoError(t, json.Unmarshal(p.Params, &params))
		notifications = append(notifications, params)
	}

	assert.Equal(t, "RunningLocal", notifications[0]["newState"])
	assert.Equal(t, "Finished", notifications[1]["newState"])
}

func TestSubmitJobUnknownQueueRepliesError(t *testing.T) {
	r := newTestRig(t)

	r.sendRequest(t, 1, "submitJob", map[string]any{
		"queue":   "nonexistent",
		"program": "sleep",
	})

	reply := r.nextPacket(t)
	require.Equal(t, rpc.KindErrorResponse, reply.Kind)
	assert.Equal(t, rpc.CodeInvalidQueue, reply.Err.Code)
}

func TestCancelUnknownJobRepliesInvalidMoleQueueID(t *testing.T) {
	r := newTestRig(t)

	r.sendRequest(t, 1, "cancelJob", map[string]any{"moleQueueId": 999})

	reply := r.nextPacket(t)
	require.Equal(t, rpc.KindErrorResponse, reply.Kind)
	assert.Equal(t, rpc.CodeInvalidMoleQueueID, reply.Err.Code)
	assert.EqualValues(t, 999, reply.Err.Data)
}

func TestLookupJobRoundTrip(t *testing.T) {
	r := newTestRig(t)

	id, _, err := r.jobs.NewJob()
	require.NoError(t, err)
	require.NoError(t, r.jobs.Update(id, func(d *jobs.Data) {
		d.Queue, d.Program = "local", "sleep"
	}))

	r.sendRequest(t, 1, "lookupJob", map[string]any{"moleQueueId": uint64(id)})

	reply := r.nextPacket(t)
	require.Equal(t, rpc.KindResult, reply.Kind)

	data, err := jobs.FromHash(reply.Result)
	require.NoError(t, err)
	assert.Equal(t, "local", data.Queue)
	assert.Equal(t, "sleep", data.Program)
}

func TestUnknownMethodRepliesMethodNotFound(t *testing.T) {
	r := newTestRig(t)

	r.sendRequest(t, 1, "frobnicate", nil)

	reply := r.nextPacket(t)
	require.Equal(t, rpc.KindErrorResponse, reply.Kind)
	assert.Equal(t, rpc.CodeMethodNotFound, reply.Err.Code)
}
