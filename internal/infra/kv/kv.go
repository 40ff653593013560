// Package kv provides the local key-value persistence used for session
// settings, play history and the uploaded library.
package kv

import (
	"errors"
	"sync"
)

// ErrNotFound indicates the key has never been written or was deleted.
var ErrNotFound = errors.New("key not found")

// Store is an independently readable/writable set of aggregates.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// MemoryStore is an in-process Store, mostly useful in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte

	// PutErr, when set, is returned by every Put.
	PutErr error
	puts   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.PutErr != nil {
		return m.PutErr
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Puts returns how many Put calls the store has received.
func (m *MemoryStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
