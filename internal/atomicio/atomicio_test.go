// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package atomicio

import (
	"os"
	"path/filepath"
	"testing"

	"go.solispartners.kz/bot/internal/testutil"
)

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "file.json")

	if err := WriteFile(name, []byte("first"), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "first")

	fi, err := os.Stat(name)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, fi.Mode().Perm(), os.FileMode(0o600))
}

func TestWriteFileBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "file.json")

	if err := WriteFile(name, []byte("first"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(name, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "second")

	backups, err := filepath.Glob(name + ".*.bak")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(backups), 1)

	bb, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(bb), "first")
}

func TestWriteFilePrunesBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "file.json")

	for range maxBackups + 5 {
		if err := WriteFile(name, []byte("data"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := filepath.Glob(name + ".*.bak")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) > maxBackups {
		t.Fatalf("got %d backups, want at most %d", len(backups), maxBackups)
	}
}
