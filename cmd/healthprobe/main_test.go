// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.solispartners.kz/bot/internal/cli/clitest"
	"go.solispartners.kz/bot/internal/testutil"
)

func healthServer(t *testing.T, body string, code int) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestProbe(t *testing.T) {
	t.Parallel()

	healthy := healthServer(t, `{"ok": true, "checks": {}}`, http.StatusOK)
	unhealthy := healthServer(t, `{
		"ok": false,
		"checks": {
			"telegram": {"status": "polling", "ok": true},
			"sheets": {"status": "5 consecutive failures", "ok": false}
		}
	}`, http.StatusInternalServerError)
	garbage := healthServer(t, `not JSON at all`, http.StatusInternalServerError)

	clitest.Run(t, func(t *testing.T) *app {
		return new(app)
	}, map[string]clitest.Case[*app]{
		"healthy": {
			Args:         []string{"-url", healthy.URL + "/health"},
			WantInStdout: "ok",
		},
		"unhealthy": {
			Args:    []string{"-url", unhealthy.URL + "/health"},
			WantErr: errUnhealthy,
		},
		"unhealthy with unparsable body": {
			Args:    []string{"-url", garbage.URL + "/health"},
			WantErr: errUnhealthy,
		},
		"url from environment": {
			Env:          map[string]string{"HEALTH_URL": healthy.URL + "/health"},
			WantInStdout: "ok",
		},
	})
}

func TestFailingChecks(t *testing.T) {
	t.Parallel()

	got := failingChecks([]byte(`{
		"ok": false,
		"checks": {
			"telegram": {"status": "polling", "ok": true},
			"sheets": {"status": "5 consecutive failures", "ok": false},
			"store": {"status": "write failed", "ok": false}
		}
	}`))
	testutil.AssertEqual(t, got, "sheets: 5 consecutive failures; store: write failed")

	if got := failingChecks([]byte(`oops`)); !strings.Contains(got, "oops") {
		t.Fatalf("unparsable body must pass through, got %q", got)
	}
}
