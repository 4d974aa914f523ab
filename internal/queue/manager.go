package queue

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager owns every configured Queue by name, enforcing name uniqueness
// and exposing the (queue, [programs]) snapshot the listQueues RPC needs
// (spec §4.9).
type Manager struct {
	logger *zap.Logger

	mu    sync.RWMutex
	order []string
	named map[string]Queue
}

// NewManager returns an empty Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger, named: make(map[string]Queue)}
}

// Add registers q under its Name(), failing if that name is already in
// use. Emits a log line in place of the source's queueAdded signal — the
// Server observes additions by calling Add itself, so no separate
// notification channel is needed here.
func (m *Manager) Add(q Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := q.Name()
	if _, exists := m.named[name]; exists {
		return fmt.Errorf("queue: name %q already in use", name)
	}
	m.named[name] = q
	m.order = append(m.order, name)
	m.logger.Info("queue: added", zap.String("name", name), zap.String("type", q.TypeName()))
	return nil
}

// Remove unregisters the named queue, if present.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.named[name]; !exists {
		return
	}
	delete(m.named, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.logger.Info("queue: removed", zap.String("name", name))
}

// Lookup resolves a queue by name.
func (m *Manager) Lookup(name string) (Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.named[name]
	return q, ok
}

// ToQueueList returns a snapshot mapping each queue name to its ordered
// program-name list, backing the listQueues RPC result (spec §4.1, §4.9).
// Queue and program order are both preserved as configured.
func (m *Manager) ToQueueList() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]string, len(m.order))
	for _, name := range m.order {
		q := m.named[name]
		names := make([]string, 0, len(q.Programs()))
		for _, p := range q.Programs() {
			names = append(names, p.Name)
		}
		out[name] = names
	}
	return out
}

// Names returns the configured queue names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}
