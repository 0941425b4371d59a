// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.solispartners.kz/bot/internal/testutil"
)

func TestMemStore(t *testing.T) {
	t.Parallel()
	testStore(t, NewMemStore(t.Context(), 0))
}

func TestJSONFile(t *testing.T) {
	t.Parallel()

	s, err := NewJSONFile(t.Context(), filepath.Join(t.TempDir(), "store.json"), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, databaseURL, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Clean up the table before running the test.
	if _, err := s.pool.Exec(ctx, "DELETE FROM kv"); err != nil {
		t.Fatal(err)
	}

	testStore(t, s)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "user:1", []byte("alice")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "user:2", []byte("bob")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "lead:1", []byte("corporate")); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(ctx, "user:1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "alice")

	// Get of a non-existent key returns (nil, nil).
	v, err = s.Get(ctx, "user:404")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("got %q, want nil", v)
	}

	// Keys are filtered by prefix.
	keys, err := s.Keys(ctx, "user:")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertContains(t, keys, "user:1")
	testutil.AssertContains(t, keys, "user:2")
	testutil.AssertNotContains(t, keys, "lead:1")

	// Overwriting a key keeps the latest value.
	if err := s.Set(ctx, "user:1", []byte("alice v2")); err != nil {
		t.Fatal(err)
	}
	v, err = s.Get(ctx, "user:1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "alice v2")

	// Delete removes the key, deleting twice is fine.
	if err := s.Delete(ctx, "user:2"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "user:2"); err != nil {
		t.Fatal(err)
	}
	v, err = s.Get(ctx, "user:2")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("got %q, want nil", v)
	}
}

func TestMemStoreTTL(t *testing.T) {
	t.Parallel()

	s := NewMemStore(t.Context(), 10*time.Millisecond)
	ctx := context.Background()

	if err := s.Set(ctx, "catalog", []byte("cached")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(30 * time.Millisecond)

	v, err := s.Get(ctx, "catalog")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("value must have expired, got %q", v)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := t.Context()

	s, err := Open(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemStore); !ok {
		t.Fatalf("want MemStore, got %T", s)
	}

	s, err = Open(ctx, "file://"+filepath.Join(t.TempDir(), "db.json"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*JSONFile); !ok {
		t.Fatalf("want JSONFile, got %T", s)
	}

	if _, err := Open(ctx, "redis://localhost", 0); err == nil {
		t.Fatal("want error for unsupported URL")
	}
}
