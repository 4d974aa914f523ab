// Package jobs implements the Job/JobData entity and the JobManager that
// owns all jobs in a dense id-keyed arena (spec §3, §4.3, §9 "Ownership
// rewrite"). Every other component holds a jobs.ID and resolves through
// the Manager at each access; nothing outside this package ever mutates
// Data directly.
package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Observer receives synchronous callbacks for every JobManager mutation,
// the Go re-expression of the source's signal/slot connections (spec §9).
// Implementations MUST NOT call back into the Manager that invoked them;
// the Manager detects same-call-stack reentrant mutation attempts and
// rejects them (see Manager.emitting).
type Observer interface {
	JobAboutToBeAdded(id ID, data Data)
	JobAdded(id ID, data Data)
	JobAboutToBeRemoved(id ID, data Data)
	JobRemoved(id ID)
	JobStateChanged(id ID, old, new State)
	JobQueueIDChanged(id ID, queueID ID)
	JobUpdated(id ID, data Data)
}

// NopObserver implements Observer with no-op methods, so callers can embed
// it and override only the callbacks they care about.
type NopObserver struct{}

func (NopObserver) JobAboutToBeAdded(ID, Data)         {}
func (NopObserver) JobAdded(ID, Data)                  {}
func (NopObserver) JobAboutToBeRemoved(ID, Data)       {}
func (NopObserver) JobRemoved(ID)                      {}
func (NopObserver) JobStateChanged(ID, State, State)   {}
func (NopObserver) JobQueueIDChanged(ID, ID)           {}
func (NopObserver) JobUpdated(ID, Data)                {}

// ErrReentrantMutation is returned when a Manager mutation method is
// called from within an Observer callback dispatched by this same
// Manager — forbidden per spec §9.
var ErrReentrantMutation = fmt.Errorf("jobs: reentrant mutation from observer callback")

// ErrNotFound is returned by operations on an ID the Manager does not
// hold — a "dangling use" per spec §3.
var ErrNotFound = fmt.Errorf("jobs: not found")

// ErrIllegalTransition is returned by SetState when the requested
// transition is not permitted by the state graph in spec §4.5.
var ErrIllegalTransition = fmt.Errorf("jobs: illegal state transition")

// Manager owns every Data in a process, keyed by ID, and is the only
// component that may mutate a Data value.
type Manager struct {
	logger *zap.Logger

	mu     sync.RWMutex
	jobs   map[ID]*Data
	nextID ID

	obsMu     sync.RWMutex
	observers []Observer

	// emitting counts Observer callbacks currently in flight, used to
	// reject reentrant mutation attempts. It is an approximation of "same
	// goroutine" reentrancy (Observer contracts forbid spawning new
	// goroutines to call back in), sufficient for the debug assertion
	// spec §9 calls for.
	emitting int32
}

// NewManager creates an empty Manager. The MoleQueue ID counter starts at
// 1 so that 0 (InvalidID) is never assigned.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger,
		jobs:   make(map[ID]*Data),
		nextID: 1,
	}
}

// Subscribe registers an Observer for all future mutations.
func (m *Manager) Subscribe(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) emit(fn func(Observer)) {
	atomic.AddInt32(&m.emitting, 1)
	defer atomic.AddInt32(&m.emitting, -1)

	m.obsMu.RLock()
	observers := append([]Observer(nil), m.observers...)
	m.obsMu.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}

func (m *Manager) guardReentrancy() error {
	if atomic.LoadInt32(&m.emitting) > 0 {
		return ErrReentrantMutation
	}
	return nil
}

// NewJob creates an empty Data (state None), assigns the next MoleQueue
// ID, inserts it, and emits JobAboutToBeAdded then JobAdded.
func (m *Manager) NewJob() (ID, Data, error) {
	return m.NewJobFromData(NewData())
}

// NewJobFromData is NewJob but seeds the new Data's fields from seed;
// seed.MoleQueueID and seed.State are always overwritten (ID is assigned
// fresh, state starts at None), per spec §4.3.
func (m *Manager) NewJobFromData(seed Data) (ID, Data, error) {
	if err := m.guardReentrancy(); err != nil {
		return InvalidID, Data{}, err
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	seed.MoleQueueID = id
	seed.State = None
	if seed.Keywords == nil {
		seed.Keywords = make(map[string]string)
	}
	m.mu.Unlock()

	m.emit(func(o Observer) { o.JobAboutToBeAdded(id, seed) })

	m.mu.Lock()
	data := seed
	m.jobs[id] = &data
	m.mu.Unlock()

	m.emit(func(o Observer) { o.JobAdded(id, seed) })
	return id, seed, nil
}

// Lookup resolves id to its current Data. The boolean result is false for
// an id the Manager does not (or no longer) hold.
func (m *Manager) Lookup(id ID) (Data, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.jobs[id]
	if !ok {
		return Data{}, false
	}
	return *d, true
}

// All returns a snapshot of every job currently held.
func (m *Manager) All() map[ID]Data {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[ID]Data, len(m.jobs))
	for id, d := range m.jobs {
		out[id] = *d
	}
	return out
}

// JobsWithState returns every job currently in state s (a linear scan, per
// spec §4.3).
func (m *Manager) JobsWithState(s State) []Data {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Data
	for _, d := range m.jobs {
		if d.State == s {
			out = append(out, *d)
		}
	}
	return out
}

// RemoveJob removes id from the Manager, emitting JobAboutToBeRemoved then
// JobRemoved. Removing a job in an active state is allowed (implicit
// cancel-and-forget, per spec §3).
func (m *Manager) RemoveJob(id ID) error {
	if err := m.guardReentrancy(); err != nil {
		return err
	}

	m.mu.Lock()
	d, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	m.emit(func(o Observer) { o.JobAboutToBeRemoved(id, *d) })

	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()

	m.emit(func(o Observer) { o.JobRemoved(id) })
	return nil
}

// RemoveJobs removes every id in ids, stopping at the first error.
func (m *Manager) RemoveJobs(ids []ID) error {
	for _, id := range ids {
		if err := m.RemoveJob(id); err != nil {
			return err
		}
	}
	return nil
}

// SetState validates and applies a state transition, persisting the job
// and emitting JobStateChanged then JobUpdated on success. An illegal
// transition is rejected silently from the caller's perspective at the
// protocol layer but logged as a warning here, per spec §3 invariants.
func (m *Manager) SetState(id ID, newState State) error {
	if err := m.guardReentrancy(); err != nil {
		return err
	}

	m.mu.Lock()
	d, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	old := d.State
	if !Allowed(old, newState) {
		m.mu.Unlock()
		m.logger.Warn("jobs: rejected illegal state transition",
			zap.Uint64("moleQueueId", uint64(id)),
			zap.String("from", old.String()),
			zap.String("to", newState.String()),
		)
		return ErrIllegalTransition
	}
	d.State = newState
	snapshot := *d
	m.mu.Unlock()

	if err := writeSidecar(snapshot); err != nil {
		m.logger.Warn("jobs: failed to persist sidecar after state change",
			zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
	}

	m.emit(func(o Observer) { o.JobStateChanged(id, old, newState) })
	m.emit(func(o Observer) { o.JobUpdated(id, snapshot) })
	return nil
}

// SetQueueID records the scheduler-assigned id (PID or batch id) for a
// job and emits JobQueueIDChanged then JobUpdated.
func (m *Manager) SetQueueID(id ID, queueID ID) error {
	if err := m.guardReentrancy(); err != nil {
		return err
	}

	m.mu.Lock()
	d, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	d.QueueID = queueID
	snapshot := *d
	m.mu.Unlock()

	if err := writeSidecar(snapshot); err != nil {
		m.logger.Warn("jobs: failed to persist sidecar after queue id change",
			zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
	}

	m.emit(func(o Observer) { o.JobQueueIDChanged(id, queueID) })
	m.emit(func(o Observer) { o.JobUpdated(id, snapshot) })
	return nil
}

// Update applies mutate to the job's Data in place and emits JobUpdated.
// LocalWorkingDirectory is immutable once non-empty (spec §3 invariant);
// Update restores the prior value if mutate attempts to change it.
func (m *Manager) Update(id ID, mutate func(*Data)) error {
	if err := m.guardReentrancy(); err != nil {
		return err
	}

	m.mu.Lock()
	d, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	lockedDir := d.LocalWorkingDirectory
	mutate(d)
	if lockedDir != "" {
		d.LocalWorkingDirectory = lockedDir
	}
	snapshot := *d
	m.mu.Unlock()

	if err := writeSidecar(snapshot); err != nil {
		m.logger.Warn("jobs: failed to persist sidecar after update",
			zap.Uint64("moleQueueId", uint64(id)), zap.Error(err))
	}

	m.emit(func(o Observer) { o.JobUpdated(id, snapshot) })
	return nil
}
