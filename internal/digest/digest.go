// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package digest collects new items from legal news feeds for the daily
// digest the bot posts to the firm's channel.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.solispartners.kz/bot/internal/logger"
	"go.solispartners.kz/bot/internal/request"
	"go.solispartners.kz/bot/internal/store"
	"go.solispartners.kz/bot/internal/util/syncx"
	"go.solispartners.kz/bot/internal/version"

	"github.com/mmcdole/gofeed"
)

const (
	errorThreshold        = 12 // failing continuously for N fetches disables the feed
	fetchConcurrencyLimit = 5  // N fetches that can run at the same time

	statePrefix = "digest:feed:"

	defaultMaxItems = 10
)

// Config configures a [Digest].
type Config struct {
	// Feeds is the list of RSS/Atom feed URLs to collect from.
	Feeds []string
	// Store persists per-feed fetch state between runs.
	Store store.Store
	// HTTPClient is an optional HTTP client to use for requests.
	HTTPClient *http.Client
	Logf       logger.Logf
	// MaxItems caps the number of items per digest. Defaults to 10.
	MaxItems int
}

// Digest fetches configured feeds and keeps track of what was already seen.
type Digest struct {
	feeds    []string
	store    store.Store
	httpc    *http.Client
	logf     logger.Logf
	maxItems int
	fp       *gofeed.Parser
}

// Item is a single digest entry.
type Item struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
}

type feedState struct {
	LastUpdated  time.Time `json:"last_updated"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ErrorCount   int       `json:"error_count,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Disabled     bool      `json:"disabled,omitempty"`
}

// New returns a Digest collecting from the configured feeds.
func New(cfg Config) *Digest {
	d := &Digest{
		feeds:    cfg.Feeds,
		store:    cfg.Store,
		httpc:    cfg.HTTPClient,
		logf:     cfg.Logf,
		maxItems: cfg.MaxItems,
	}
	if d.httpc == nil {
		d.httpc = request.DefaultClient
	}
	if d.logf == nil {
		d.logf = func(format string, args ...any) {}
	}
	if d.maxItems == 0 {
		d.maxItems = defaultMaxItems
	}
	d.fp = gofeed.NewParser()
	return d
}

// Collect fetches all feeds and returns items published since the previous
// run, newest first, capped at MaxItems. Feeds that fail keep their state
// and are retried next run; a feed failing [errorThreshold] times in a row
// is disabled.
func (d *Digest) Collect(ctx context.Context) ([]Item, error) {
	var (
		mu    sync.Mutex
		items []Item
	)

	lwg := syncx.NewLimitedWaitGroup(fetchConcurrencyLimit)
	for _, url := range d.feeds {
		lwg.Add(1)
		go func() {
			defer lwg.Done()
			got := d.fetch(ctx, url)
			if len(got) == 0 {
				return
			}
			mu.Lock()
			items = append(items, got...)
			mu.Unlock()
		}()
	}
	lwg.Wait()

	sort.Slice(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	if len(items) > d.maxItems {
		items = items[:d.maxItems]
	}
	return items, nil
}

func (d *Digest) fetch(ctx context.Context, url string) []Item {
	state := d.loadState(ctx, url)

	// A feed we don't remember is new. Start from now so the first digest
	// doesn't dump its whole archive.
	firstRun := state.LastUpdated.IsZero()
	if firstRun {
		state.LastUpdated = time.Now()
	}

	if state.Disabled {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.handleFailure(ctx, url, state, err)
		return nil
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if state.ETag != "" {
		req.Header.Set("If-None-Match", state.ETag)
	}
	if state.LastModified != "" {
		req.Header.Set("If-Modified-Since", state.LastModified)
	}

	res, err := d.httpc.Do(req)
	if err != nil {
		d.handleFailure(ctx, url, state, err)
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotModified {
		state.LastUpdated = time.Now()
		state.ErrorCount = 0
		state.LastError = ""
		d.saveState(ctx, url, state)
		return nil
	}
	if res.StatusCode != http.StatusOK {
		const readLimit = 16384
		body, _ := io.ReadAll(io.LimitReader(res.Body, readLimit))
		d.handleFailure(ctx, url, state, fmt.Errorf("want 200, got %d: %s", res.StatusCode, body))
		return nil
	}

	feed, err := d.fp.Parse(res.Body)
	if err != nil {
		d.handleFailure(ctx, url, state, err)
		return nil
	}

	state.ETag = res.Header.Get("ETag")
	if lastModified := res.Header.Get("Last-Modified"); lastModified != "" {
		state.LastModified = lastModified
	}

	var items []Item
	if !firstRun {
		for _, fi := range feed.Items {
			if fi.PublishedParsed == nil || fi.PublishedParsed.Before(state.LastUpdated) {
				continue
			}
			items = append(items, Item{
				Title:     fi.Title,
				Link:      fi.Link,
				Source:    feed.Title,
				Published: *fi.PublishedParsed,
			})
		}
	}

	state.LastUpdated = time.Now()
	state.ErrorCount = 0
	state.LastError = ""
	d.saveState(ctx, url, state)

	return items
}

func (d *Digest) handleFailure(ctx context.Context, url string, state *feedState, err error) {
	state.ErrorCount++
	state.LastError = err.Error()
	d.logf("digest: fetching %s failed (%d in a row): %v", url, state.ErrorCount, err)

	if state.ErrorCount >= errorThreshold {
		state.Disabled = true
		d.logf("digest: feed %s disabled after %d consecutive failures", url, state.ErrorCount)
	}
	d.saveState(ctx, url, state)
}

func (d *Digest) loadState(ctx context.Context, url string) *feedState {
	state := new(feedState)
	if d.store == nil {
		return state
	}
	b, err := d.store.Get(ctx, statePrefix+url)
	if err != nil || b == nil {
		return state
	}
	if err := json.Unmarshal(b, state); err != nil {
		return new(feedState)
	}
	return state
}

func (d *Digest) saveState(ctx context.Context, url string, state *feedState) {
	if d.store == nil {
		return
	}
	b, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := d.store.Set(ctx, statePrefix+url, b); err != nil {
		d.logf("digest: saving state for %s failed: %v", url, err)
	}
}

// Format renders items as a Telegram HTML message. It returns an empty
// string when there is nothing to post.
func Format(items []Item) string {
	if len(items) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("📰 <b>Дайджест правовых новостей</b>\n\n")
	for _, it := range items {
		title := html.EscapeString(it.Title)
		if it.Link != "" {
			fmt.Fprintf(&sb, "• <a href=\"%s\">%s</a>", html.EscapeString(it.Link), title)
		} else {
			sb.WriteString("• " + title)
		}
		if it.Source != "" {
			sb.WriteString(" (" + html.EscapeString(it.Source) + ")")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
