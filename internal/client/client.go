// Package client implements ClientJsonRpc + Client (spec §4.1, §4.10
// component N): the peer side of the protocol a chemistry application links
// against to submit jobs to a running broker, receive the asynchronous
// replies, and subscribe to jobStateChanged notifications.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/rpc"
	"github.com/molequeue-io/molequeue/internal/transport"
)

// Observer receives the asynchronous events a Client emits, mirroring the
// original's queueListUpdated and jobStateChanged signals (spec §4.1).
// Submission and cancellation outcomes are returned by SubmitJobRequest and
// CancelJobRequest instead of being signalled to observers.
type Observer interface {
	QueueListUpdated(queues map[string][]string)
	JobStateChanged(id jobs.ID, old, new jobs.State)
}

// NopObserver implements Observer with no-op methods.
type NopObserver struct{}

func (NopObserver) QueueListUpdated(map[string][]string) {}
func (NopObserver) JobStateChanged(jobs.ID, jobs.State, jobs.State) {}

// Client is a connected peer of one broker: it issues listQueues/submitJob/
// cancelJob/lookupJob requests and correlates each reply back to its
// caller via a PendingTable, while notifications are fanned out to every
// subscribed Observer (spec §4.1, §4.2).
type Client struct {
	conn    *transport.Connection
	pending *rpc.PendingTable
	logger  *zap.Logger

	mu      sync.Mutex
	waiters map[uint64]chan rpc.Packet

	obsMu     sync.RWMutex
	observers []Observer
}

// Dial connects to a broker listening on a Unix domain socket at address
// (spec §6 "MoleQueue" / "MoleQueue-testing" endpoint names) and begins
// dispatching incoming packets immediately.
func Dial(address string, logger *zap.Logger) (*Client, error) {
	conn, err := net.Dial("unix", address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", address, err)
	}
	c := New(transport.Open(conn, logger), logger)
	c.conn.Start(c.handlePacket)
	return c, nil
}

// New wraps an already-open Connection (e.g. one side of a net.Pipe in
// tests) without starting dispatch, so the caller can Subscribe observers
// first. Call conn.Start separately, or use Dial for the common case.
func New(conn *transport.Connection, logger *zap.Logger) *Client {
	return &Client{
		conn:    conn,
		pending: rpc.NewPendingTable(),
		logger:  logger,
		waiters: make(map[uint64]chan rpc.Packet),
	}
}

// Start begins dispatching packets already buffered on conn, for callers
// that used New directly instead of Dial.
func (c *Client) Start() {
	c.conn.Start(c.handlePacket)
}

// Subscribe registers an Observer for queue-list updates and job state
// change notifications.
func (c *Client) Subscribe(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) handlePacket(raw []byte) {
	p, err := rpc.Decode(raw, false)
	if err != nil {
		c.logger.Warn("client: dropping unparsable packet", zap.Error(err))
		return
	}

	switch p.Kind {
	case rpc.KindNotification:
		c.handleNotification(p)
	case rpc.KindResult, rpc.KindErrorResponse:
		c.deliverReply(p)
	default:
		c.logger.Warn("client: dropping unexpected packet", zap.Int("kind", int(p.Kind)))
	}
}

func (c *Client) handleNotification(p rpc.Packet) {
	if p.Method != "jobStateChanged" {
		c.logger.Warn("client: unrecognized notification", zap.String("method", p.Method))
		return
	}
	var params struct {
		MoleQueueID uint64     `json:"moleQueueId"`
		OldState    jobs.State `json:"oldState"`
		NewState    jobs.State `json:"newState"`
	}
	if err := json.Unmarshal(p.Params, &params); err != nil {
		c.logger.Warn("client: malformed jobStateChanged notification", zap.Error(err))
		return
	}

	c.obsMu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.obsMu.RUnlock()
	for _, o := range observers {
		o.JobStateChanged(jobs.ID(params.MoleQueueID), params.OldState, params.NewState)
	}
}

// deliverReply routes a response to the goroutine blocked in call, per the
// pending-request table contract: a reply whose id has no pending entry is
// ignored silently (spec §4.1).
func (c *Client) deliverReply(p rpc.Packet) {
	if p.ID == nil {
		return
	}
	// The correlation counter is seeded from a full 64-bit random value
	// (rpc.NewPendingTable), so ids routinely exceed math.MaxInt64; parse as
	// unsigned rather than through json.Number.Int64.
	id, err := strconv.ParseUint(p.ID.String(), 10, 64)
	if err != nil {
		c.logger.Warn("client: non-numeric correlation id in reply", zap.Error(err))
		return
	}

	if _, ok := c.pending.Resolve(id); !ok {
		c.logger.Debug("client: ignoring reply with no pending request", zap.Uint64("id", id))
		return
	}

	c.mu.Lock()
	ch, ok := c.waiters[id]
	delete(c.waiters, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- p
}

// call sends a request and blocks until its reply arrives or ctx is done.
func (c *Client) call(ctx context.Context, method string, params any) (rpc.Packet, error) {
	id := c.pending.Register(method)
	ch := make(chan rpc.Packet, 1)

	c.mu.Lock()
	c.waiters[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		c.pending.Resolve(id)
	}

	raw, err := rpc.EncodeRequest(id, method, params)
	if err != nil {
		cleanup()
		return rpc.Packet{}, fmt.Errorf("client: encode %s request: %w", method, err)
	}
	if err := c.conn.Send(raw); err != nil {
		cleanup()
		return rpc.Packet{}, fmt.Errorf("client: send %s request: %w", method, err)
	}

	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		cleanup()
		return rpc.Packet{}, ctx.Err()
	}
}

// RequestQueueListUpdate issues listQueues and returns the queue ->
// program-names mapping (spec §4.1, §4.9).
func (c *Client) RequestQueueListUpdate(ctx context.Context) (map[string][]string, error) {
	p, err := c.call(ctx, "listQueues", nil)
	if err != nil {
		return nil, err
	}
	if p.Kind == rpc.KindErrorResponse {
		return nil, p.Err
	}
	var queues map[string][]string
	if err := json.Unmarshal(p.Result, &queues); err != nil {
		return nil, fmt.Errorf("client: decode listQueues result: %w", err)
	}

	c.obsMu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.obsMu.RUnlock()
	for _, o := range observers {
		o.QueueListUpdated(queues)
	}
	return queues, nil
}

// SubmissionResult is the reply to a successful submitJob call.
type SubmissionResult struct {
	MoleQueueID      jobs.ID
	WorkingDirectory string
}

// SubmitJobRequest submits data to the broker and returns the assigned id
// and working directory, or the broker's typed error (spec §4.1, §4.10).
func (c *Client) SubmitJobRequest(ctx context.Context, data jobs.Data) (SubmissionResult, error) {
	hash, err := data.ToHash()
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("client: encode job hash: %w", err)
	}

	p, err := c.call(ctx, "submitJob", json.RawMessage(hash))
	if err != nil {
		return SubmissionResult{}, err
	}
	if p.Kind == rpc.KindErrorResponse {
		return SubmissionResult{}, p.Err
	}

	var result struct {
		MoleQueueID      uint64 `json:"moleQueueId"`
		WorkingDirectory string `json:"workingDirectory"`
	}
	if err := json.Unmarshal(p.Result, &result); err != nil {
		return SubmissionResult{}, fmt.Errorf("client: decode submitJob result: %w", err)
	}
	return SubmissionResult{MoleQueueID: jobs.ID(result.MoleQueueID), WorkingDirectory: result.WorkingDirectory}, nil
}

// CancelJobRequest requests cancellation of id. The reply arrives once the
// broker has issued the underlying kill; the Canceled state transition
// itself may follow later as a jobStateChanged notification (spec §5).
func (c *Client) CancelJobRequest(ctx context.Context, id jobs.ID) error {
	p, err := c.call(ctx, "cancelJob", map[string]any{"moleQueueId": uint64(id)})
	if err != nil {
		return err
	}
	if p.Kind == rpc.KindErrorResponse {
		return p.Err
	}
	return nil
}

// LookupJobRequest fetches the current JobData hash for id from the broker.
func (c *Client) LookupJobRequest(ctx context.Context, id jobs.ID) (jobs.Data, error) {
	p, err := c.call(ctx, "lookupJob", map[string]any{"moleQueueId": uint64(id)})
	if err != nil {
		return jobs.Data{}, err
	}
	if p.Kind == rpc.KindErrorResponse {
		return jobs.Data{}, p.Err
	}
	return jobs.FromHash(p.Result)
}
