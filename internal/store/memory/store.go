// Package memory provides a goroutine-safe in-memory offline.Storage.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hay-kot/shelter/internal/core/offline"
)

// Store keeps values in a map. It is used for the "memory" cache backend and
// as a fake in tests. A positive quota bounds the total bytes stored.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	quota  int
}

var _ offline.Storage = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// WithQuota limits the total size of all stored values in bytes.
func (s *Store) WithQuota(bytes int) *Store {
	s.quota = bytes
	return s
}

// Get returns a copy of the value for key or offline.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, offline.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		size := len(value)
		for k, v := range s.values {
			if k != key {
				size += len(v)
			}
		}
		if size > s.quota {
			return fmt.Errorf("%w: %d bytes exceeds %d", offline.ErrQuotaExceeded, size, s.quota)
		}
	}

	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
