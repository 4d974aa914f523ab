package server

import (
	"encoding/json"
	"sync"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/transport"
)

// Session is a ServerConnection (spec §4.10): per-client bookkeeping layered
// on top of a transport.Connection. It tracks which jobs were submitted or
// looked up through this session so the Server can route jobStateChanged notifications
// to exactly the sessions that asked about them, plus the submission- and
// cancellation-in-flight tables that correlate an outstanding request id to
// the job it concerns while the request is still being serviced.
type Session struct {
	id   string
	conn *transport.Connection

	mu                     sync.Mutex
	owned                  map[jobs.ID]struct{}
	submissionsInFlight    map[string]struct{}
	cancellationsInFlight  map[string]jobs.ID
}

func newSession(id string, conn *transport.Connection) *Session {
	return &Session{
		id:                    id,
		conn:                  conn,
		owned:                 make(map[jobs.ID]struct{}),
		submissionsInFlight:   make(map[string]struct{}),
		cancellationsInFlight: make(map[string]jobs.ID),
	}
}

// startProcessing begins dispatching buffered and subsequent packets to
// handler. Packets received between Open and this call are held by the
// underlying Connection (spec §4.2, §4.10 "Holds incoming requests until the
// Server calls startProcessing()") so the Server can finish wiring this
// Session's handlers first.
func (s *Session) startProcessing(handler transport.Handler) {
	s.conn.Start(handler)
}

// own records that this session submitted or looked up id and wants to
// hear about its future state changes.
func (s *Session) own(id jobs.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned[id] = struct{}{}
}

// owns reports whether this session has previously submitted or looked up
// id.
func (s *Session) owns(id jobs.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owned[id]
	return ok
}

func (s *Session) beginSubmission(correlationID json.Number) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissionsInFlight[correlationID.String()] = struct{}{}
}

func (s *Session) endSubmission(correlationID json.Number) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissionsInFlight, correlationID.String())
}

func (s *Session) beginCancellation(correlationID json.Number, id jobs.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancellationsInFlight[correlationID.String()] = id
}

func (s *Session) endCancellation(correlationID json.Number) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancellationsInFlight, correlationID.String())
}

func (s *Session) send(packet []byte) error {
	return s.conn.Send(packet)
}

func (s *Session) close() error {
	return s.conn.Close()
}
