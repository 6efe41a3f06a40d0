// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"time"

	"go.astrophena.name/tgrelay/internal/syncx"
)

// MemStore is an in-memory implementation of the [Store] interface.
type MemStore struct {
	ttl   time.Duration
	cache syncx.Map[string, cacheEntry]
}

// NewMemStore creates a new [MemStore] with the given TTL.
func NewMemStore(ctx context.Context, ttl time.Duration) *MemStore {
	s := &MemStore{ttl: ttl}
	go runCleanup(ctx, ttl, s.cleanup)
	return s
}

type cacheEntry struct {
	value        []byte
	lastAccessed time.Time
}

func (s *MemStore) cleanup() {
	s.cache.Range(func(key string, e cacheEntry) bool {
		if expired(e.lastAccessed, s.ttl) {
			s.cache.Delete(key)
		}
		return true
	})
}

// Get retrieves a value for a given key.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.cache.Load(key)
	if !ok {
		return nil, nil
	}
	if expired(e.lastAccessed, s.ttl) {
		s.cache.Delete(key)
		return nil, nil
	}

	e.lastAccessed = time.Now()
	s.cache.Store(key, e)

	// Return a copy to prevent the caller from mutating the cache.
	return append([]byte(nil), e.value...), nil
}

// Set stores a value for a given key.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	s.cache.Store(key, cacheEntry{
		value:        append([]byte(nil), value...),
		lastAccessed: time.Now(),
	})
	return nil
}

// Delete removes a key.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error { return nil }
