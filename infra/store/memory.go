package store

import (
	"context"
	"sync"

	"github.com/kilianp07/loadguard/core/plan"
)

var _ plan.StateStore = (*MemoryStore)(nil)

// MemoryStore keeps the encoded documents in memory. Values are copied
// through JSON, so callers never share state with the store.
type MemoryStore struct {
	docStore
}

type memKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	m := &memKV{data: map[string][]byte{}}
	return &MemoryStore{docStore: docStore{kv: m}}
}

func (m *memKV) get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
