package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// Record appends one job-history entry. Called directly by tests and by
// the Observer adapter below.
func (s *Store) Record(ctx context.Context, entry JobHistoryEntry) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("store: record history entry: %w", err)
	}
	return nil
}

// History returns the recorded transitions for a single job, oldest first.
func (s *Store) History(ctx context.Context, id jobs.ID) ([]JobHistoryEntry, error) {
	var entries []JobHistoryEntry
	err := s.db.WithContext(ctx).
		Where("mole_queue_id = ?", uint64(id)).
		Order("recorded_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: history for job %d: %w", id, err)
	}
	return entries, nil
}

// Recent returns the most recent n history entries across all jobs, newest
// first, for the admin HTTP debug surface.
func (s *Store) Recent(ctx context.Context, n int) ([]JobHistoryEntry, error) {
	var entries []JobHistoryEntry
	err := s.db.WithContext(ctx).
		Order("recorded_at DESC").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent history: %w", err)
	}
	return entries, nil
}

// PruneBefore deletes history entries recorded before cutoff, returning the
// number of rows removed. Used by internal/maintenance's retention sweep.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("recorded_at < ?", cutoff).Delete(&JobHistoryEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: prune history before %s: %w", cutoff, result.Error)
	}
	return result.RowsAffected, nil
}

// ObserverAdapter implements jobs.Observer and records every state
// transition it sees into the Store, subscribing directly to a
// jobs.Manager alongside any other observer (e.g. server.Server).
type ObserverAdapter struct {
	jobs.NopObserver
	store   *Store
	manager *jobs.Manager
	logger  *zap.Logger
}

// NewObserverAdapter returns an adapter ready for manager.Subscribe. manager
// is used to resolve a job's Queue/Program at the moment of the
// transition, since jobs.Observer callbacks only carry the id and states.
func NewObserverAdapter(store *Store, manager *jobs.Manager, logger *zap.Logger) *ObserverAdapter {
	return &ObserverAdapter{store: store, manager: manager, logger: logger}
}

func (a *ObserverAdapter) JobStateChanged(id jobs.ID, old, new jobs.State) {
	data, _ := a.manager.Lookup(id)
	entry := JobHistoryEntry{
		MoleQueueID: uint64(id),
		Queue:       data.Queue,
		Program:     data.Program,
		OldState:    old.String(),
		NewState:    new.String(),
		RecordedAt:  time.Now(),
	}
	if err := a.store.Record(context.Background(), entry); err != nil {
		a.logger.Warn("store: failed to record job history", zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
	}
}
