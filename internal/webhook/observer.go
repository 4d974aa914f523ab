package webhook

import (
	"context"

	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// ObserverAdapter implements jobs.Observer, sending each job state
// transition through a Sender on its own goroutine so a slow or
// unreachable webhook endpoint never blocks the JobManager's emit loop
// (internal/jobs.Manager enforces a reentrancy guard on its observer
// callbacks; a synchronous HTTP POST here would violate it under load).
type ObserverAdapter struct {
	jobs.NopObserver
	sender  *Sender
	manager *jobs.Manager
	logger  *zap.Logger
}

// NewObserverAdapter returns an adapter that sends through sender,
// resolving each job's Queue/Program via manager at callback time.
func NewObserverAdapter(sender *Sender, manager *jobs.Manager, logger *zap.Logger) *ObserverAdapter {
	return &ObserverAdapter{sender: sender, manager: manager, logger: logger}
}

func (a *ObserverAdapter) JobStateChanged(id jobs.ID, old, new jobs.State) {
	data, ok := a.manager.Lookup(id)
	if !ok {
		return
	}
	go func() {
		if err := a.sender.Send(context.Background(), id, data, old, new); err != nil {
			a.logger.Warn("webhook: delivery failed",
				zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		}
	}()
}
