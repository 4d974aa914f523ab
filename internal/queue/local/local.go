// Package local implements QueueLocal: a Queue strategy that runs jobs as
// child processes bounded by a configured parallelism cap, FIFO otherwise
// (spec §4.6).
package local

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/clock"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
	"github.com/molequeue-io/molequeue/internal/runner"
)

// defaultMaxCores caps the parallelism default when the logical core count
// cannot be determined or exceeds a sane desktop default (spec §4.6).
const defaultMaxCores = 8

// tickPeriod is how often the FIFO is drained against the running count
// (spec §4.6 step 4).
const tickPeriod = 5 * time.Second

// Queue is the Local Queue strategy (spec component H).
type Queue struct {
	name     string
	programs []program.Program
	maxCores int

	manager *jobs.Manager
	run     runner.Runner
	clk     clock.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	fifo    []jobs.ID
	running map[jobs.ID]runner.Token

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config configures a new local Queue.
type Config struct {
	Name     string
	Programs []program.Program
	// MaxCores is the configured parallelism cap. Zero selects the
	// default: all logical cores, capped at 8 (spec §4.6).
	MaxCores int
}

// New returns a ready-to-Start local Queue.
func New(cfg Config, manager *jobs.Manager, run runner.Runner, clk clock.Clock, logger *zap.Logger) *Queue {
	max := cfg.MaxCores
	if max <= 0 {
		max = detectDefaultCores()
	}
	return &Queue{
		name:     cfg.Name,
		programs: cfg.Programs,
		maxCores: max,
		manager:  manager,
		run:      run,
		clk:      clk,
		logger:   logger,
		running:  make(map[jobs.ID]runner.Token),
	}
}

// detectDefaultCores mirrors the original's QThread::idealThreadCount(),
// replaced with gopsutil's logical core count per spec's DOMAIN STACK.
func detectDefaultCores() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if n > defaultMaxCores {
		n = defaultMaxCores
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (q *Queue) Name() string               { return q.name }
func (q *Queue) TypeName() string           { return "Local" }
func (q *Queue) Programs() []program.Program { return q.programs }

func (q *Queue) lookupProgram(name string) (program.Program, bool) {
	for _, p := range q.programs {
		if p.Name == name {
			return p, true
		}
	}
	return program.Program{}, false
}

// Submit validates the job's Program, stages its input files, and enqueues
// it for execution (spec §4.6 steps 1-3).
func (q *Queue) Submit(ctx context.Context, id jobs.ID) error {
	data, ok := q.manager.Lookup(id)
	if !ok {
		return jobs.ErrNotFound
	}

	if _, ok := q.lookupProgram(data.Program); !ok {
		_ = q.manager.SetState(id, jobs.Accepted)
		_ = q.manager.SetState(id, jobs.Error)
		return fmt.Errorf("local queue %q: unknown program %q", q.name, data.Program)
	}

	if err := q.manager.SetState(id, jobs.Accepted); err != nil {
		return err
	}

	if err := q.stageJob(id); err != nil {
		q.logger.Warn("local: failed to stage job, marking Error",
			zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		_ = q.manager.SetState(id, jobs.Error)
		return err
	}

	q.mu.Lock()
	q.fifo = append(q.fifo, id)
	q.mu.Unlock()

	return q.manager.SetState(id, jobs.LocalQueued)
}

// Kill removes a still-pending job from the FIFO, or signals its running
// child process, then marks it Canceled (spec §4.6 step 7).
func (q *Queue) Kill(ctx context.Context, id jobs.ID) error {
	q.mu.Lock()
	for i, pending := range q.fifo {
		if pending == id {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			q.mu.Unlock()
			return q.manager.SetState(id, jobs.Canceled)
		}
	}
	token, running := q.running[id]
	q.mu.Unlock()

	if running {
		q.run.Kill(token)
	}
	return q.manager.SetState(id, jobs.Canceled)
}

// Start begins the 5s tick loop that drains the FIFO against the
// parallelism cap (spec §4.6 step 4).
func (q *Queue) Start(ctx context.Context) {
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	ticker := q.clk.NewTicker(tickPeriod)

	go func() {
		defer close(q.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				q.drainFIFO(ctx)
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the tick loop and waits for it to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		if q.stopCh != nil {
			close(q.stopCh)
			<-q.doneCh
		}
	})
}

func (q *Queue) drainFIFO(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.running) >= q.maxCores || len(q.fifo) == 0 {
			q.mu.Unlock()
			return
		}
		id := q.fifo[0]
		q.fifo = q.fifo[1:]
		q.mu.Unlock()

		q.launch(ctx, id)
	}
}

func (q *Queue) launch(ctx context.Context, id jobs.ID) {
	data, ok := q.manager.Lookup(id)
	if !ok {
		return
	}
	p, ok := q.lookupProgram(data.Program)
	if !ok {
		_ = q.manager.SetState(id, jobs.Error)
		return
	}

	spec := buildRunSpec(data, p)
	token, started, exited := q.run.Run(ctx, spec)

	q.mu.Lock()
	q.running[id] = token
	q.mu.Unlock()

	go func() {
		<-started
		if err := q.manager.SetState(id, jobs.RunningLocal); err != nil {
			q.logger.Warn("local: failed to record RunningLocal", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
		}

		result := <-exited

		q.mu.Lock()
		delete(q.running, id)
		q.mu.Unlock()

		if result.Err != nil || result.ExitCode != 0 {
			q.logger.Warn("local: job process ended in error",
				zap.Uint64("moleQueueId", uint64(id)), zap.Int("exitCode", result.ExitCode), zap.Error(result.Err))
			_ = q.manager.SetState(id, jobs.Error)
			return
		}
		_ = q.manager.SetState(id, jobs.Finished)
	}()
}
