// Package kv defines the small key-value contract used by the embedding
// cache, with Redis and in-process implementations.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is the key-value contract. Callers treat it as best-effort: a cache
// failure degrades to a provider call, never to a request failure.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close()
}
