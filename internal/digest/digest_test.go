// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package digest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.solispartners.kz/bot/internal/store"
	"go.solispartners.kz/bot/internal/testutil"
)

func feedXML(pubDate time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Adilet News</title>
<item>
	<title>Amendments to the Tax Code</title>
	<link>https://example.kz/news/1</link>
	<pubDate>%s</pubDate>
</item>
</channel>
</rss>`, pubDate.Format(time.RFC1123Z))
}

func TestCollect(t *testing.T) {
	t.Parallel()

	var pubDate atomic.Pointer[time.Time]
	past := time.Now().Add(-time.Hour)
	pubDate.Store(&past)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML(*pubDate.Load()))
	}))
	defer ts.Close()

	st := store.NewMemStore(t.Context(), 0)
	d := New(Config{
		Feeds: []string{ts.URL},
		Store: st,
	})

	// First run initializes state and reports nothing, so a newly added
	// feed doesn't dump its archive.
	items, err := d.Collect(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(items), 0)

	// An item published after the first run shows up on the second.
	future := time.Now().Add(time.Hour)
	pubDate.Store(&future)

	items, err = d.Collect(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(items), 1)
	testutil.AssertEqual(t, items[0].Title, "Amendments to the Tax Code")
	testutil.AssertEqual(t, items[0].Link, "https://example.kz/news/1")
	testutil.AssertEqual(t, items[0].Source, "Adilet News")
}

func TestCollectNotModified(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML(time.Now().Add(-time.Hour)))
	}))
	defer ts.Close()

	st := store.NewMemStore(t.Context(), 0)
	d := New(Config{Feeds: []string{ts.URL}, Store: st})

	if _, err := d.Collect(t.Context()); err != nil {
		t.Fatal(err)
	}
	items, err := d.Collect(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(items), 0)
	testutil.AssertEqual(t, requests.Load(), int64(2))
}

func TestCollectDisablesFailingFeed(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	st := store.NewMemStore(t.Context(), 0)
	d := New(Config{Feeds: []string{ts.URL}, Store: st})

	for range errorThreshold {
		if _, err := d.Collect(t.Context()); err != nil {
			t.Fatal(err)
		}
	}
	testutil.AssertEqual(t, requests.Load(), int64(errorThreshold))

	// The feed is disabled now and not fetched anymore.
	if _, err := d.Collect(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, requests.Load(), int64(errorThreshold))
}

func TestCollectCapsItems(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Feed</title>`)
	for i := range 20 {
		fmt.Fprintf(&sb, `<item><title>Item %d</title><link>https://example.kz/%d</link><pubDate>%s</pubDate></item>`,
			i, i, time.Now().Add(time.Duration(i+1)*time.Minute).Format(time.RFC1123Z))
	}
	sb.WriteString(`</channel></rss>`)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sb.String())
	}))
	defer ts.Close()

	st := store.NewMemStore(t.Context(), 0)
	d := New(Config{Feeds: []string{ts.URL}, Store: st, MaxItems: 5})

	if _, err := d.Collect(t.Context()); err != nil {
		t.Fatal(err)
	}
	items, err := d.Collect(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(items), 5)

	// Newest first.
	testutil.AssertEqual(t, items[0].Title, "Item 19")
}

func TestFormat(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, Format(nil), "")

	got := Format([]Item{
		{Title: "A & B merge", Link: "https://example.kz/1", Source: "Adilet News"},
		{Title: "No link item"},
	})
	if !strings.Contains(got, `<a href="https://example.kz/1">A &amp; B merge</a>`) {
		t.Fatalf("escaped link missing from %q", got)
	}
	if !strings.Contains(got, "• No link item") {
		t.Fatalf("plain item missing from %q", got)
	}
}
