// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"fmt"
	"testing"

	"go.solispartners.kz/bot/internal/testutil"
)

func TestStreamerLines(t *testing.T) {
	t.Parallel()

	s := NewStreamer(3)

	fmt.Fprintf(s, "line 1\nline 2\n")
	testutil.AssertEqual(t, s.Lines(), []string{"line 1\n", "line 2\n"})

	// Overflow the ring buffer, the oldest line must be evicted.
	fmt.Fprintf(s, "line 3\nline 4\n")
	testutil.AssertEqual(t, s.Lines(), []string{"line 2\n", "line 3\n", "line 4\n"})
}

func TestStreamerPartialWrites(t *testing.T) {
	t.Parallel()

	s := NewStreamer(3)

	fmt.Fprintf(s, "partial")
	testutil.AssertEqual(t, len(s.Lines()), 0)

	fmt.Fprintf(s, " line\n")
	testutil.AssertEqual(t, s.Lines(), []string{"partial line\n"})
}

func TestStreamerStream(t *testing.T) {
	t.Parallel()

	s := NewStreamer(3)

	stream, closeFunc := s.Stream()
	defer closeFunc()

	fmt.Fprintf(s, "hello\n")
	testutil.AssertEqual(t, <-stream, "hello\n")
}

func TestLogfWriter(t *testing.T) {
	t.Parallel()

	var got string
	logf := Logf(func(format string, args ...any) {
		got = fmt.Sprintf(format, args...)
	})

	n, err := logf.Write([]byte("message"))
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, len("message"))
	testutil.AssertEqual(t, got, "message")
}
