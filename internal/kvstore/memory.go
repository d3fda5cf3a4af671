package kvstore

import (
	"sync"

	"github.com/starford/geotracker/internal/settings"
)

// Memory is a non-persistent store for tests and throwaway sessions.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	// FailNext makes the next Apply return this error once.
	FailNext error
}

var _ settings.Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Apply updates the map.
func (m *Memory) Apply(changes ...settings.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailNext; err != nil {
		m.FailNext = nil
		return err
	}
	applyChanges(m.values, changes)
	return nil
}

// Put stores value under key.
func (m *Memory) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
