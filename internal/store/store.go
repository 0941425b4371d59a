// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a key-value store backed in-memory, by a JSON
// file, SQLite or PostgreSQL.
//
// The bot keeps everything that must survive restarts here: known users,
// lead form conversations, queued Google Sheets writes and digest feed
// state. A TTL of zero disables expiration; a positive TTL turns a store
// into a cache.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key string, value []byte) error
	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a value for a given key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
	// Close closes the store and releases any resources.
	Close() error
}

// Open opens a store for the given database URL:
//
//   - "mem://" or an empty URL opens an in-memory store;
//   - "file://<path>" opens a JSON file-backed store;
//   - "sqlite://<path>" opens a SQLite store (needs a cgo-enabled build);
//   - "postgres://..." or "postgresql://..." opens a PostgreSQL store.
//
// A ttl of zero means values never expire.
func Open(ctx context.Context, databaseURL string, ttl time.Duration) (Store, error) {
	switch {
	case databaseURL == "" || databaseURL == "mem://":
		return NewMemStore(ctx, ttl), nil
	case strings.HasPrefix(databaseURL, "file://"):
		return NewJSONFile(ctx, strings.TrimPrefix(databaseURL, "file://"), ttl)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"), ttl)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL, ttl)
	}
	return nil, fmt.Errorf("store: unsupported database URL %q", databaseURL)
}
