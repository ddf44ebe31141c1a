package stats

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int64)}
}

// Incr adds counts to the running totals
func (m *MemoryStore) Incr(_ context.Context, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for category, n := range counts {
		if n > 0 {
			m.counts[category] += int64(n)
		}
	}
	return nil
}

// Snapshot returns a copy of the totals
func (m *MemoryStore) Snapshot(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
