package tokenstore

import (
	"sync"
	"time"
)

// MemoryStore is a Store without persistence. Tests use it to inspect what the
// authentication core writes.
type MemoryStore struct {
	mu    sync.Mutex
	state TokenState
	saves int
	now   func() time.Time
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding initial.
func NewMemoryStore(initial TokenState, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{state: initial, now: o.now}
}

// Load returns the state with the load-time expiry rule applied.
func (m *MemoryStore) Load() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return visible(m.state, m.now())
}

// Raw returns the stored record without the expiry rule.
func (m *MemoryStore) Raw() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Save replaces the record.
func (m *MemoryStore) Save(st TokenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	m.saves++
	return nil
}

// Clear empties the record.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = TokenState{}
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
