// Package adminhttp is the broker's unauthenticated local admin surface:
// health checks, a live job/log snapshot, a Prometheus scrape endpoint, and
// a WebSocket feed of job state transitions, for a desktop GUI or operator
// to watch the broker without speaking JSON-RPC. Grounded on
// arkeep/server/internal/api/{router,middleware}.go for the chi wiring and
// arkeep/server/internal/websocket/{hub,client,message}.go for the
// WebSocket fan-out, with the JWT/session layer dropped: spec §1's
// Non-goals exclude any authentication surface, but the teacher's ambient
// HTTP stack (chi + gorilla/websocket) is kept regardless.
package adminhttp

import "strconv"

// MessageType identifies the kind of event carried by a Message.
type MessageType string

const (
	// MsgJobStatus is sent whenever a job's state changes.
	MsgJobStatus MessageType = "job.status"

	// MsgJobLog is the message type for job log entries. Nothing in the
	// broker publishes it; ObserverAdapter sends only MsgJobStatus.
	MsgJobLog MessageType = "job.log"
)

// Message is the envelope for every frame sent to a /debug/ws client.
type Message struct {
	Type    MessageType `json:"type"`
	Topic   string      `json:"topic"`
	Payload any         `json:"payload"`
}

// jobTopic is the pub/sub topic for one job's events. "jobs" (no suffix)
// is the catch-all topic every client is subscribed to in addition to any
// specific job it asks for, matching this surface's "watch everything by
// default" intent for a single-operator desktop broker.
func jobTopic(id uint64) string {
	return "job:" + strconv.FormatUint(id, 10)
}

const allJobsTopic = "jobs"
