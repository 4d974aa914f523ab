// Package maintenance runs the broker's periodic housekeeping sweep: pruning
// sidecar directories and job-history rows for jobs that finished more than
// a retention window ago. It is deliberately separate from the queue tick
// machinery in internal/clock — that machinery drives core state-machine
// progress and must stay deterministic under a fake clock in tests, while
// this is ordinary wall-clock background cleanup with no effect on job
// semantics, the same distinction the teacher draws between its
// injectable-clock request timeouts and its gocron-driven backup schedule.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/store"
)

// sweepTag identifies the single recurring gocron job this package
// schedules, so Stop can remove it by tag the same way the teacher's
// scheduler removes a policy's job by UUID tag.
const sweepTag = "job-sweep"

// Config controls how aggressively the sweep prunes completed jobs.
type Config struct {
	// JobRetention is how long a Finished/Canceled/Error job's sidecar
	// directory and JobManager entry are kept after its last recorded
	// transition before being pruned.
	JobRetention time.Duration
	// HistoryRetention is how long job_history rows are kept; independent
	// of JobRetention since history is an audit trail, not live state.
	HistoryRetention time.Duration
	// Interval is how often the sweep runs.
	Interval time.Duration
	// LocalDirBase is the parent directory of every job's
	// LocalWorkingDirectory, mirroring server.Server's localDirBase.
	LocalDirBase string
}

// DefaultConfig returns reasonable defaults: sweep every 10 minutes,
// prune job sidecars after 7 days, history rows after 90 days.
func DefaultConfig(localDirBase string) Config {
	return Config{
		JobRetention:     7 * 24 * time.Hour,
		HistoryRetention: 90 * 24 * time.Hour,
		Interval:         10 * time.Minute,
		LocalDirBase:     localDirBase,
	}
}

// Sweeper owns the gocron scheduler driving the periodic prune.
type Sweeper struct {
	cron    gocron.Scheduler
	jobs    *jobs.Manager
	store   *store.Store
	cfg     Config
	logger  *zap.Logger
}

// New creates a Sweeper. Call Start to begin the periodic sweep.
func New(cfg Config, jobManager *jobs.Manager, st *store.Store, logger *zap.Logger) (*Sweeper, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("maintenance: create gocron scheduler: %w", err)
	}
	return &Sweeper{
		cron:   cron,
		jobs:   jobManager,
		store:  st,
		cfg:    cfg,
		logger: logger.Named("maintenance"),
	}, nil
}

// Start registers the recurring sweep job and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() { s.runSweep(ctx) }),
		gocron.WithTags(sweepTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("maintenance: schedule sweep job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("maintenance sweep started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("jobRetention", s.cfg.JobRetention),
		zap.Duration("historyRetention", s.cfg.HistoryRetention),
	)
	return nil
}

// Stop waits for any in-progress sweep to finish, then shuts down.
func (s *Sweeper) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("maintenance: shutdown: %w", err)
	}
	s.logger.Info("maintenance sweep stopped")
	return nil
}

// RunNow executes one sweep immediately, outside the gocron schedule. Used
// by tests.
func (s *Sweeper) RunNow(ctx context.Context) { s.runSweep(ctx) }

func (s *Sweeper) runSweep(ctx context.Context) {
	pruned := 0
	for _, state := range []jobs.State{jobs.Finished, jobs.Canceled, jobs.Error} {
		for _, data := range s.jobs.JobsWithState(state) {
			done, err := s.finishedAt(ctx, data.MoleQueueID)
			if err != nil {
				s.logger.Warn("maintenance: failed to resolve completion time",
					zap.Uint64("moleQueueId", uint64(data.MoleQueueID)), zap.Error(err))
				continue
			}
			if done.IsZero() || time.Since(done) < s.cfg.JobRetention {
				continue
			}
			if err := s.pruneJob(data); err != nil {
				s.logger.Warn("maintenance: failed to prune job",
					zap.Uint64("moleQueueId", uint64(data.MoleQueueID)), zap.Error(err))
				continue
			}
			pruned++
		}
	}

	rows, err := s.store.PruneBefore(ctx, time.Now().Add(-s.cfg.HistoryRetention))
	if err != nil {
		s.logger.Warn("maintenance: failed to prune job history", zap.Error(err))
	} else if rows > 0 {
		s.logger.Info("maintenance: pruned job history rows", zap.Int64("rows", rows))
	}

	if pruned > 0 {
		s.logger.Info("maintenance: pruned completed jobs", zap.Int("count", pruned))
	}
}

// finishedAt returns the time of a job's most recent recorded transition,
// the best available proxy for "when did this job reach its terminal
// state" since jobs.Data carries no timestamps of its own (spec §3) — the
// append-only history table internal/store maintains is the only place
// that records one.
func (s *Sweeper) finishedAt(ctx context.Context, id jobs.ID) (time.Time, error) {
	entries, err := s.store.History(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if len(entries) == 0 {
		return time.Time{}, nil
	}
	return entries[len(entries)-1].RecordedAt, nil
}

func (s *Sweeper) pruneJob(data jobs.Data) error {
	if data.LocalWorkingDirectory != "" {
		if err := os.RemoveAll(data.LocalWorkingDirectory); err != nil {
			return fmt.Errorf("remove working directory: %w", err)
		}
	} else if s.cfg.LocalDirBase != "" {
		// Fall back to the conventional layout server.Server assigns
		// (LocalDirBase/<moleQueueId>) in case LocalWorkingDirectory was
		// never recorded for this job.
		fallback := filepath.Join(s.cfg.LocalDirBase, strconv.FormatUint(uint64(data.MoleQueueID), 10))
		_ = os.RemoveAll(fallback)
	}
	return s.jobs.RemoveJob(data.MoleQueueID)
}
