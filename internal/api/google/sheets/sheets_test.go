// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.solispartners.kz/bot/internal/store"
	"go.solispartners.kz/bot/internal/testutil"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// fakeSheets is a minimal fake of the spreadsheets.values API surface the
// client touches.
type fakeSheets struct {
	catalogRows [][]any
	appended    [][]any
	reads       atomic.Int64
	failReads   atomic.Bool
	failWrites  atomic.Bool
}

func (f *fakeSheets) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, ":append"):
			if f.failWrites.Load() {
				http.Error(w, `{"error": {"code": 500}}`, http.StatusInternalServerError)
				return
			}
			var vr sheetsapi.ValueRange
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				t.Fatal(err)
			}
			f.appended = append(f.appended, vr.Values...)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		case r.Method == http.MethodGet:
			f.reads.Add(1)
			if f.failReads.Load() {
				http.Error(w, `{"error": {"code": 500}}`, http.StatusInternalServerError)
				return
			}
			resp, err := json.Marshal(sheetsapi.ValueRange{Values: f.catalogRows})
			if err != nil {
				t.Fatal(err)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(resp)
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	})
}

func testClient(t *testing.T, f *fakeSheets, st store.Store) *Client {
	ts := httptest.NewServer(f.handler(t))
	t.Cleanup(ts.Close)

	c, err := NewClient(t.Context(), Config{
		SpreadsheetID: "sheet1",
		Store:         st,
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(ts.URL),
			option.WithoutAuthentication(),
			option.WithHTTPClient(ts.Client()),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	c.sleep = func(context.Context, time.Duration) bool { return true }
	return c
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	f := &fakeSheets{
		catalogRows: [][]any{
			{"Corporate", "Company registration", "LLP or JSC registration in Kazakhstan", "from 150000 KZT"},
			{"Corporate", "Contract review"},
			{"Disputes", "Court representation", "Civil and commercial disputes", float64(200000)},
			{"", "row without a category is skipped"},
			{"row without a name is skipped"},
		},
	}
	c := testClient(t, f, nil)

	services, err := c.Catalog(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, services, []Service{
		{Category: "Corporate", Name: "Company registration", Description: "LLP or JSC registration in Kazakhstan", Price: "from 150000 KZT"},
		{Category: "Corporate", Name: "Contract review"},
		{Category: "Disputes", Name: "Court representation", Description: "Civil and commercial disputes", Price: "200000"},
	})

	// Second call within TTL must come from the cache.
	if _, err := c.Catalog(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, f.reads.Load(), int64(1))
}

func TestCatalogServesStaleOnFailure(t *testing.T) {
	t.Parallel()

	f := &fakeSheets{
		catalogRows: [][]any{{"Corporate", "Company registration"}},
	}
	c := testClient(t, f, nil)
	c.catalogTTL = time.Nanosecond

	first, err := c.Catalog(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	f.failReads.Store(true)
	time.Sleep(time.Millisecond)

	second, err := c.Catalog(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, second, first)
}

func TestAppendLead(t *testing.T) {
	t.Parallel()

	f := &fakeSheets{}
	c := testClient(t, f, nil)

	lead := Lead{
		Time:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UserID:   100,
		Username: "client",
		Name:     "Aset",
		Phone:    "+77010000000",
		Topic:    "Company registration",
		Details:  "Wants an LLP",
	}
	if err := c.AppendLead(t.Context(), lead); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, len(f.appended), 1)
	testutil.AssertEqual(t, f.appended[0], []any{
		"2025-06-01T12:00:00Z", "100", "client", "Aset", "+77010000000", "Company registration", "Wants an LLP",
	})
}

func TestAppendLeadQueuesOnFailure(t *testing.T) {
	t.Parallel()

	f := &fakeSheets{}
	f.failWrites.Store(true)
	st := store.NewMemStore(t.Context(), 0)
	c := testClient(t, f, st)

	lead := Lead{Time: time.Now(), UserID: 100, Name: "Aset", Phone: "+77010000000"}
	if err := c.AppendLead(t.Context(), lead); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(f.appended), 0)

	n, err := c.PendingCount(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 1)

	// Still failing: flush returns the error and keeps the lead queued.
	if err := c.FlushPending(t.Context()); err == nil {
		t.Fatal("expected an error while writes are failing")
	}

	f.failWrites.Store(false)
	if err := c.FlushPending(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(f.appended), 1)

	n, err = c.PendingCount(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 0)
}

func TestLeadCount(t *testing.T) {
	t.Parallel()

	f := &fakeSheets{
		catalogRows: [][]any{{"a"}, {"b"}, {"c"}},
	}
	c := testClient(t, f, nil)

	n, err := c.LeadCount(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 3)
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	f := &fakeSheets{}
	f.failReads.Store(true)
	c := testClient(t, f, nil)
	c.catalogTTL = time.Nanosecond

	for range breakerThreshold {
		if _, err := c.Catalog(t.Context()); err == nil {
			t.Fatal("expected an error")
		}
	}
	if c.Healthy() {
		t.Fatal("breaker must be open after consecutive failures")
	}

	// Calls now fail fast without touching the API.
	before := f.reads.Load()
	_, err := c.Catalog(t.Context())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	testutil.AssertEqual(t, f.reads.Load(), before)

	// After the cooldown a successful call closes the breaker.
	c.breaker.Access(func(b *breakerState) {
		b.openedAt = time.Now().Add(-2 * breakerCooldown)
	})
	f.failReads.Store(false)
	if _, err := c.Catalog(t.Context()); err != nil {
		t.Fatal(err)
	}
	if !c.Healthy() {
		t.Fatal("breaker must close after a success")
	}
}
