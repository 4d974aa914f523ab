// Package queue defines the abstract Queue contract (spec §4.6 shared
// surface, §4.9) and the QueueManager that owns named Queue instances.
// Concrete strategies live in the local and remotessh subpackages.
package queue

import (
	"context"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
)

// Queue owns Programs and accepts jobs for execution. Concrete
// implementations (local process pool, remote SSH/batch-scheduler
// pipeline) interpret Submit/Kill differently but share this contract so
// the Server and QueueManager can treat every queue uniformly.
type Queue interface {
	// Name is the queue's configured name, unique within a QueueManager.
	Name() string

	// TypeName identifies the concrete strategy ("Local", "PBS/Torque",
	// "Sun Grid Engine"), per spec §4.9.
	TypeName() string

	// Programs returns the queue's programs in configured order (spec §8
	// scenario 3 requires listQueues to preserve this order).
	Programs() []program.Program

	// Submit begins the job's execution pipeline. Submit itself only
	// validates and enqueues; the state machine advances asynchronously
	// as the pipeline progresses (spec §4.6, §4.7).
	Submit(ctx context.Context, id jobs.ID) error

	// Kill requests cancellation of a job owned by this queue.
	Kill(ctx context.Context, id jobs.ID) error

	// Start begins the queue's background tick loop. Stop ends it.
	Start(ctx context.Context)
	Stop()
}
