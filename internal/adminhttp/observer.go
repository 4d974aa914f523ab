package adminhttp

import "github.com/molequeue-io/molequeue/internal/jobs"

// ObserverAdapter implements jobs.Observer, publishing every job state
// transition onto the Hub so /debug/ws clients see them live. Subscribe it
// alongside server.Server, store.ObserverAdapter, logging.ObserverAdapter,
// and metrics.ObserverAdapter.
type ObserverAdapter struct {
	jobs.NopObserver
	hub *Hub
}

// NewObserverAdapter returns an adapter that publishes onto hub.
func NewObserverAdapter(hub *Hub) *ObserverAdapter {
	return &ObserverAdapter{hub: hub}
}

func (a *ObserverAdapter) JobStateChanged(id jobs.ID, old, new jobs.State) {
	payload := map[string]any{
		"moleQueueId": uint64(id),
		"oldState":    old.String(),
		"newState":    new.String(),
	}
	msg := Message{Type: MsgJobStatus, Topic: jobTopic(uint64(id)), Payload: payload}
	a.hub.Publish(jobTopic(uint64(id)), msg)
	a.hub.Publish(allJobsTopic, msg)
}
