// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a small key-value store used to persist user
// profiles. It is backed in-memory, by a JSON file, by SQLite or by
// PostgreSQL.
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
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close closes the store and releases any resources.
	Close() error
}

// Open opens a store described by dsn:
//
//   - "mem:" or "" for an in-memory store;
//   - "file:<path>" for a JSON file;
//   - "sqlite:<path>" for a SQLite database;
//   - "postgres://..." or "postgresql://..." for PostgreSQL.
//
// Entries not accessed for longer than ttl are removed. Zero ttl means
// entries never expire.
func Open(ctx context.Context, dsn string, ttl time.Duration) (Store, error) {
	switch {
	case dsn == "" || dsn == "mem:":
		return NewMemStore(ctx, ttl), nil
	case strings.HasPrefix(dsn, "file:"):
		return NewJSONFile(ctx, strings.TrimPrefix(dsn, "file:"), ttl)
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite:"), ttl)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn, ttl)
	}
	return nil, fmt.Errorf("store: unsupported DSN %q", dsn)
}

// Path returns the local file behind a "file:" or "sqlite:" DSN. It returns
// an empty string for other stores.
func Path(dsn string) string {
	for _, prefix := range []string{"file:", "sqlite:"} {
		if path, ok := strings.CutPrefix(dsn, prefix); ok {
			path, _, _ = strings.Cut(path, "?")
			return path
		}
	}
	return ""
}

func expired(lastAccessed time.Time, ttl time.Duration) bool {
	return ttl > 0 && time.Since(lastAccessed) > ttl
}

// runCleanup calls clean periodically until ctx is done.
func runCleanup(ctx context.Context, ttl time.Duration, clean func()) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(min(ttl/2, 24*time.Hour))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			clean()
		case <-ctx.Done():
			return
		}
	}
}
