package cooldown

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Seed installs entries as-is; used to restore state and in tests.
func (m *MemoryStore) Seed(entries ...Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.Key] = e
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStore) Record(_ context.Context, key string, at time.Time, d time.Duration) (Entry, error) {
	return m.put(key, at, d, false), nil
}

func (m *MemoryStore) Extend(_ context.Context, key string, at time.Time, d time.Duration) (Entry, error) {
	return m.put(key, at, d, true), nil
}

func (m *MemoryStore) put(key string, at time.Time, d time.Duration, extended bool) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.entries[key]
	e := merge(prev, had, key, at, d, extended)
	m.entries[key] = e
	return e
}

// Snapshot returns a copy sorted by key.
func (m *MemoryStore) Snapshot(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}
