// Package server binds the RPC layer (internal/rpc, internal/transport) to
// the JobManager and QueueManager, completing the broker side of the
// protocol: accepting connections, dispatching JSON-RPC requests to job and
// queue operations, and fanning job state-change notifications out to every
// session that submitted the job in question (spec §4.10).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/metrics"
	"github.com/molequeue-io/molequeue/internal/queue"
	"github.com/molequeue-io/molequeue/internal/rpc"
	"github.com/molequeue-io/molequeue/internal/transport"
)

// Server owns the listener and fans RPC requests out to the JobManager and
// QueueManager it was built with; construction and state restoration (spec
// §4.10 bullet 1) are the caller's responsibility (see cmd/moleqd), so a
// Server can be wired identically in tests with an in-memory jobs.Manager.
type Server struct {
	listener     *transport.Listener
	jobManager   *jobs.Manager
	queueManager *queue.Manager
	localDirBase string
	logger       *zap.Logger
	metrics      *metrics.Metrics

	// StrictDecoding rejects packets carrying unrecognized top-level JSON-RPC
	// members instead of merely logging them (spec §4.1 "Validation
	// policy"). Defaults to loose (false): a desktop broker should tolerate
	// a newer client speaking a superset of the protocol.
	StrictDecoding bool

	mu       sync.RWMutex
	sessions map[string]*Session
	pending  map[jobs.ID][]stateTransition

	jobs.NopObserver
}

// stateTransition is one buffered JobStateChanged callback, held while a
// job's submission is still in flight and no session owns it yet.
type stateTransition struct {
	old, new jobs.State
}

// New returns a Server ready to Run. jobManager and queueManager must
// already be populated (jobs restored, queues configured) by the caller.
func New(listener *transport.Listener, jobManager *jobs.Manager, queueManager *queue.Manager, localDirBase string, logger *zap.Logger) *Server {
	s := &Server{
		listener:     listener,
		jobManager:   jobManager,
		queueManager: queueManager,
		localDirBase: localDirBase,
		logger:       logger,
		sessions:     make(map[string]*Session),
	}
	jobManager.Subscribe(s)
	return s
}

// SetMetrics attaches a metrics.Metrics instance that RPC handling will
// report into. Optional: a Server with no metrics attached just skips
// recording. cmd/moleqd calls this once at startup, after New.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Run accepts connections until ctx is canceled or the listener is closed,
// spawning one Session per peer (spec §4.10 bullet 2).
func (s *Server) Run(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.handleConnection(conn)
	}
}

// ServeConnection wires up a Session for an already-accepted Connection.
// Run calls this for every peer the Listener accepts; it is exported
// separately so tests (and alternative transports) can drive a Connection
// directly without a real Unix socket.
func (s *Server) ServeConnection(conn *transport.Connection) {
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *transport.Connection) {
	sess := newSession(uuid.NewString(), conn)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("server: client connected", zap.String("session", sess.id))

	sess.startProcessing(func(packet []byte) {
		s.dispatch(sess, packet)
	})
}

// removeSession drops a session from the registry, e.g. after its
// Connection's read loop ends.
func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Stop stops accepting new connections and closes every live session (spec
// §4.10 bullet 6, partial — persistence-on-shutdown is the caller's
// responsibility since the JobManager already persists on every mutation).
func (s *Server) Stop() error {
	err := s.listener.Close()

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.close()
	}
	return err
}

// dispatch decodes one or more JSON-RPC packets from raw and routes each
// request to its handler, replying on the same Session. Notifications and
// responses received from a peer (the broker never sends requests) are
// logged and dropped.
func (s *Server) dispatch(sess *Session, raw []byte) {
	packets, err := rpc.DecodeBatch(raw, s.StrictDecoding)
	if err != nil {
		s.replyError(sess, nil, rpc.NewError(rpc.CodeParseError, "parse error", nil))
		return
	}
	for _, p := range packets {
		s.dispatchOne(sess, p)
	}
}

func (s *Server) dispatchOne(sess *Session, p rpc.Packet) {
	if p.Kind == rpc.KindInvalid {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidRequest, "invalid request", nil))
		return
	}
	if p.Kind != rpc.KindRequest {
		// The broker is never a notification/response recipient in this
		// protocol; a peer that sends one is misbehaving but need not be
		// disconnected over it.
		s.logger.Warn("server: dropping unexpected packet", zap.Int("kind", int(p.Kind)))
		return
	}

	start := time.Now()
	outcome := "handled"

	switch p.Method {
	case "listQueues":
		s.handleListQueues(sess, p)
	case "submitJob":
		s.handleSubmitJob(sess, p)
	case "cancelJob":
		s.handleCancelJob(sess, p)
	case "lookupJob":
		s.handleLookupJob(sess, p)
	default:
		outcome = "not_found"
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeMethodNotFound, "method not found: "+p.Method, nil))
	}

	if s.metrics != nil {
		s.metrics.RecordRPC(p.Method, outcome, time.Since(start))
	}
}

func (s *Server) handleListQueues(sess *Session, p rpc.Packet) {
	s.replyResult(sess, p.ID, s.queueManager.ToQueueList())
}

// handleSubmitJob implements spec §4.10 bullet 3: create the job (assigning
// its MoleQueue id), pin its local working directory under localDirBase,
// resolve the named queue, and submit. Queue.Submit performs some of the
// job's earliest state transitions synchronously (e.g. Accepted, and for
// the local queue LocalQueued too), before this session is registered as
// the job's owner — JobStateChanged would otherwise drop them, since
// nothing owns the job yet while Submit is still running. beginPending/
// finishPendingSubmission buffer those transitions and deliver them as one
// coalesced notification right after ownership is registered, so the
// client sees a single old-to-new jump instead of losing the states
// outright (spec §8 scenario 1: exactly three jobStateChanged messages for
// the local sleep-job scenario).
func (s *Server) handleSubmitJob(sess *Session, p rpc.Packet) {
	sess.beginSubmission(*p.ID)
	defer sess.endSubmission(*p.ID)

	seed, err := jobs.FromHash(p.Params)
	if err != nil {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidParams, "invalid job hash: "+err.Error(), nil))
		return
	}

	q, ok := s.queueManager.Lookup(seed.Queue)
	if !ok {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidQueue, "unknown queue: "+seed.Queue, nil))
		return
	}

	id, data, err := s.jobManager.NewJobFromData(seed)
	if err != nil {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInternalError, err.Error(), nil))
		return
	}
	s.beginPendingSubmission(id)

	workingDir := filepath.Join(s.localDirBase, strconv.FormatUint(uint64(id), 10))
	if err := s.jobManager.Update(id, func(d *jobs.Data) {
		d.LocalWorkingDirectory = workingDir
	}); err != nil {
		s.discardPendingSubmission(id)
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInternalError, err.Error(), uint64(id)))
		return
	}

	if err := q.Submit(context.Background(), id); err != nil {
		s.discardPendingSubmission(id)
		s.logger.Warn("server: job submission rejected", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidProgram, err.Error(), uint64(id)))
		return
	}

	data, _ = s.jobManager.Lookup(id)
	s.replyResult(sess, p.ID, map[string]any{
		"moleQueueId":      uint64(id),
		"workingDirectory": data.LocalWorkingDirectory,
	})
	s.finishPendingSubmission(sess, id)
}

// handleCancelJob implements spec §4.10 bullet 4: resolve the job, dispatch
// queue.Kill, and reply once the kill command itself has completed. The
// Canceled transition may follow asynchronously (spec §5 "Cancellation
// semantics") when the next remote poll confirms disappearance from the
// scheduler queue.
func (s *Server) handleCancelJob(sess *Session, p rpc.Packet) {
	id, ok := singleIDParam(p.Params)
	if !ok {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidParams, "cancelJob requires {moleQueueId}", nil))
		return
	}
	sess.beginCancellation(*p.ID, id)
	defer sess.endCancellation(*p.ID)

	data, ok := s.jobManager.Lookup(id)
	if !ok {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidMoleQueueID, "unknown moleQueueId", uint64(id)))
		return
	}

	q, ok := s.queueManager.Lookup(data.Queue)
	if !ok {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidQueue, "unknown queue: "+data.Queue, uint64(id)))
		return
	}

	if err := q.Kill(context.Background(), id); err != nil {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInternalError, err.Error(), uint64(id)))
		return
	}
	s.replyResult(sess, p.ID, uint64(id))
}

func (s *Server) handleLookupJob(sess *Session, p rpc.Packet) {
	id, ok := singleIDParam(p.Params)
	if !ok {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidParams, "lookupJob requires {moleQueueId}", nil))
		return
	}

	data, ok := s.jobManager.Lookup(id)
	if !ok {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInvalidMoleQueueID, "unknown moleQueueId", uint64(id)))
		return
	}

	hash, err := data.ToHash()
	if err != nil {
		s.replyError(sess, p.ID, rpc.NewError(rpc.CodeInternalError, err.Error(), uint64(id)))
		return
	}
	var raw json.RawMessage = hash
	s.replyResult(sess, p.ID, raw)

	// A client that looks a job up this way is implicitly expressing
	// interest in its future state (e.g. after reconnecting), so this
	// session starts receiving jobStateChanged notifications for it too.
	sess.own(id)
}

// JobStateChanged is the jobs.Observer callback wired at construction; it
// fans the transition out to every live session that owns id (spec §4.10
// bullet 5). A transition for a job whose submission is still in flight
// (beginPendingSubmission called, finishPendingSubmission/
// discardPendingSubmission not yet) has no owner yet and is buffered
// instead of fanned out; see handleSubmitJob.
func (s *Server) JobStateChanged(id jobs.ID, old, new jobs.State) {
	s.mu.Lock()
	if buffered, ok := s.pending[id]; ok {
		s.pending[id] = append(buffered, stateTransition{old: old, new: new})
		s.mu.Unlock()
		return
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		if !sess.owns(id) {
			continue
		}
		s.notify(sess, id, old, new)
	}
}

// beginPendingSubmission marks id as submitted but not yet owned, so
// JobStateChanged buffers whatever transitions Queue.Submit performs
// synchronously instead of silently dropping them.
func (s *Server) beginPendingSubmission(id jobs.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[jobs.ID][]stateTransition)
	}
	s.pending[id] = nil
}

// finishPendingSubmission registers sess as id's owner and delivers every
// transition buffered during submission as a single coalesced
// jobStateChanged notification — the old state of the first buffered
// transition to the new state of the last — rather than replaying each
// intermediate state the client never had a chance to observe as current.
func (s *Server) finishPendingSubmission(sess *Session, id jobs.ID) {
	s.mu.Lock()
	buffered := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	sess.own(id)

	if len(buffered) == 0 {
		return
	}
	old, new := buffered[0].old, buffered[len(buffered)-1].new
	if old == new {
		return
	}
	s.notify(sess, id, old, new)
}

// discardPendingSubmission drops a pending buffer without delivering it,
// for a submission that failed before ever gaining an owner.
func (s *Server) discardPendingSubmission(id jobs.ID) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Server) notify(sess *Session, id jobs.ID, old, new jobs.State) {
	packet, err := rpc.EncodeNotification("jobStateChanged", map[string]any{
		"moleQueueId": uint64(id),
		"oldState":    old,
		"newState":    new,
	})
	if err != nil {
		s.logger.Warn("server: failed to encode jobStateChanged", zap.Error(err))
		return
	}
	if err := sess.send(packet); err != nil {
		s.logger.Debug("server: failed to deliver jobStateChanged, dropping session", zap.String("session", sess.id), zap.Error(err))
		s.removeSession(sess.id)
	}
}

func (s *Server) replyResult(sess *Session, id *json.Number, result any) {
	if id == nil {
		return
	}
	packet, err := rpc.EncodeResult(*id, result)
	if err != nil {
		s.logger.Warn("server: failed to encode result", zap.Error(err))
		return
	}
	if err := sess.send(packet); err != nil {
		s.logger.Debug("server: failed to send result", zap.Error(err))
	}
}

func (s *Server) replyError(sess *Session, id *json.Number, rpcErr *rpc.Error) {
	packet, err := rpc.EncodeErrorResponse(id, rpcErr)
	if err != nil {
		s.logger.Warn("server: failed to encode error response", zap.Error(err))
		return
	}
	if err := sess.send(packet); err != nil {
		s.logger.Debug("server: failed to send error response", zap.Error(err))
	}
}

// singleIDParam parses the common {"moleQueueId": N} request shape shared by
// cancelJob and lookupJob.
func singleIDParam(params json.RawMessage) (jobs.ID, bool) {
	var v struct {
		MoleQueueID uint64 `json:"moleQueueId"`
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return 0, false
	}
	if v.MoleQueueID == 0 {
		return 0, false
	}
	return jobs.ID(v.MoleQueueID), true
}
