// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.solispartners.kz/bot/internal/cli"
	"go.solispartners.kz/bot/internal/request"
	"go.solispartners.kz/bot/internal/web"
)

var errUnhealthy = errors.New("unhealthy")

func main() { cli.Main(new(app)) }

type app struct {
	url     string
	timeout time.Duration

	httpc *http.Client // set in tests
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.url, "url", "", "Probe `URL`. Defaults to http://127.0.0.1:8080/health.")
	fs.DurationVar(&a.timeout, "timeout", 10*time.Second, "Probe timeout.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	url := cmp.Or(a.url, env.Getenv("HEALTH_URL"), "http://127.0.0.1:8080/health")

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	hr, err := request.Make[web.HealthResponse](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        url,
		HTTPClient: a.httpc,
	})
	if err != nil {
		// The health endpoint responds 500 when a check fails; surface the
		// failing checks instead of the bare status code.
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", errUnhealthy, failingChecks(statusErr.Body))
		}
		return err
	}

	if !hr.OK {
		return errUnhealthy
	}
	fmt.Fprintln(env.Stdout, "ok")
	return nil
}

func failingChecks(body []byte) string {
	var hr web.HealthResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		return string(body)
	}

	var failing []string
	for name, check := range hr.Checks {
		if !check.OK {
			failing = append(failing, name+": "+check.Status)
		}
	}
	sort.Strings(failing)
	if len(failing) == 0 {
		return string(body)
	}
	return strings.Join(failing, "; ")
}
