package logging

import "github.com/molequeue-io/molequeue/internal/jobs"

// ObserverAdapter implements jobs.Observer and records every job lifecycle
// event as a Notification-level ring entry, matching the original's job
// lifecycle notifications (queue.cpp calls Logger::addNotificationMessage
// on submission, completion, and cancellation). Subscribe it to a
// jobs.Manager alongside server.Server and store.ObserverAdapter.
type ObserverAdapter struct {
	jobs.NopObserver
	logger *Logger
}

// NewObserverAdapter returns an adapter that writes into logger's ring.
func NewObserverAdapter(logger *Logger) *ObserverAdapter {
	return &ObserverAdapter{logger: logger}
}

func (a *ObserverAdapter) JobAdded(id jobs.ID, data jobs.Data) {
	a.logger.AddNotification(id, "job accepted: "+data.Program+" on "+data.Queue)
}

func (a *ObserverAdapter) JobStateChanged(id jobs.ID, old, new jobs.State) {
	a.logger.AddNotification(id, "job state changed: "+old.String()+" -> "+new.String())
}

func (a *ObserverAdapter) JobRemoved(id jobs.ID) {
	a.logger.AddNotification(id, "job removed")
}
