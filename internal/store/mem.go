// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"strings"
	"time"

	"go.solispartners.kz/bot/internal/util/syncx"
)

// MemStore is an in-memory implementation of the [Store] interface.
type MemStore struct {
	ttl   time.Duration
	cache syncx.Map[string, cacheEntry]
}

// NewMemStore creates a new MemStore with the given TTL.
func NewMemStore(ctx context.Context, ttl time.Duration) *MemStore {
	s := &MemStore{
		ttl: ttl,
	}
	if ttl > 0 {
		go s.cleanup(ctx)
	}
	return s
}

type cacheEntry struct {
	value        []byte
	lastAccessed time.Time
}

func (s *MemStore) cleanup(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cache.Range(func(key string, entry cacheEntry) bool {
				if time.Since(entry.lastAccessed) > s.ttl {
					s.cache.Delete(key)
				}
				return true
			})
		case <-ctx.Done():
			return
		}
	}
}

func (s *MemStore) expired(e cacheEntry) bool {
	return s.ttl > 0 && time.Since(e.lastAccessed) > s.ttl
}

// Get retrieves a value for a given key.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.cache.Load(key)
	if !ok {
		return nil, nil
	}

	if s.expired(entry) {
		s.cache.Delete(key)
		return nil, nil
	}

	entry.lastAccessed = time.Now()
	s.cache.Store(key, entry)

	// Return a copy to prevent the caller from mutating the cache.
	return append([]byte(nil), entry.value...), nil
}

// Set stores a value for a given key.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	// Store a copy to prevent the caller from mutating the cache.
	valueCopy := append([]byte(nil), value...)
	s.cache.Store(key, cacheEntry{
		value:        valueCopy,
		lastAccessed: time.Now(),
	})
	return nil
}

// Keys returns all keys with the given prefix.
func (s *MemStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	s.cache.Range(func(key string, entry cacheEntry) bool {
		if s.expired(entry) {
			return true
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	return keys, nil
}

// Delete removes a value for a given key.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error { return nil }
