// Package storage provides implementations of the engine's durable key-value
// store abstraction (tracking.KV).
package storage

import (
	"context"
	"sync"

	"github.com/storefront/analytics/internal/domain/shared"
)

// MemoryKV implements tracking.KV with an in-process map. It is the default
// for single-instance deployments and the substitute used by tests
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get returns the value for key, or shared.ErrNotFound when absent
func (s *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return "", shared.ErrNotFound
	}
	return value, nil
}

// Set stores the value under key
func (s *MemoryKV) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes key; deleting an absent key is not an error
func (s *MemoryKV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
