// Package memory implements kv.Store in process memory, used when no Redis
// instance is configured and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/procurekit/policyrag/internal/kv"
)

var _ kv.Store = (*Store)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store is an in-process KV store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry), now: time.Now}
}

// Get returns the value for key or kv.ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || (!e.expiresAt.IsZero() && s.now().After(e.expiresAt)) {
		return nil, kv.ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value, with an optional expiry when ttl > 0.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close drops all entries.
func (s *Store) Close() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
