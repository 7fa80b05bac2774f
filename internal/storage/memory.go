package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Used by tests and by
// deployments that only need aliases for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	// FailWrites makes Set return an error; lets tests exercise the
	// persistence failure path.
	FailWrites error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
