package rpc

import (
	"math/rand"
	"sync"
)

// PendingTable correlates outbound request ids to a logical method tag,
// so that an inbound response can be routed back to the caller that sent
// the matching request. A reply whose id is absent from the table is not
// for this peer and must be ignored silently, per spec §4.1.
type PendingTable struct {
	mu      sync.Mutex
	counter uint64
	entries map[uint64]string
}

// NewPendingTable creates an empty table with its correlation-id counter
// seeded from a random value, per spec §4.1 ("a process-wide counter
// seeded from a random value; the counter is 64-bit and wraps harmlessly").
func NewPendingTable() *PendingTable {
	return &PendingTable{
		counter: rand.Uint64(),
		entries: make(map[uint64]string),
	}
}

// Register allocates the next correlation id for method and records it as
// pending. Call this when sending a request.
func (t *PendingTable) Register(method string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	id := t.counter
	t.entries[id] = method
	return id
}

// Resolve looks up and removes the pending entry for id, reporting whether
// a request with that id was actually outstanding.
func (t *PendingTable) Resolve(id uint64) (method string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	method, ok = t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return method, ok
}

// Len reports the number of outstanding requests.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
