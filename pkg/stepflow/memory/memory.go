package memory

import (
	"context"
	"sync"
)

// MemoryStore keeps flow memory in process. Data is lost when the process
// exits. It is the executor's default store.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]any
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]any),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, flowID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	stored, ok := m.data[flowID]
	if !ok {
		return map[string]any{}, nil
	}
	return Clone(stored), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, flowID string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.data[flowID] = Clone(data)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, flowID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}
