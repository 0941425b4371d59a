// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sheets reads the service catalog from and writes leads to the
// firm's Google Spreadsheet.
//
// The spreadsheet is the source of truth the lawyers edit by hand, so reads
// are cached and writes are queued in the store when the API is unavailable.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.solispartners.kz/bot/internal/logger"
	"go.solispartners.kz/bot/internal/store"
	"go.solispartners.kz/bot/internal/util/syncx"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	catalogRange = "Catalog!A2:D"
	leadsRange   = "Leads!A:G"

	retryLimit   = 3
	retryBaseDur = time.Second

	// breakerThreshold consecutive failures open the circuit; calls fail
	// fast until breakerCooldown elapses.
	breakerThreshold = 5
	breakerCooldown  = 2 * time.Minute

	pendingLeadPrefix = "pending:lead:"
)

// ErrUnavailable is returned when the circuit breaker is open.
var ErrUnavailable = errors.New("sheets: temporarily unavailable")

// Service is one row of the service catalog.
type Service struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

// Lead is one row appended to the leads sheet.
type Lead struct {
	Time     time.Time `json:"time"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Topic    string    `json:"topic"`
	Details  string    `json:"details"`
}

// Config configures a [Client].
type Config struct {
	SpreadsheetID string
	Logf          logger.Logf
	Store         store.Store // queue for leads that failed to write
	CatalogTTL    time.Duration
	// ClientOptions are passed to the underlying API client. Production
	// passes credentials, tests point it at a fake server.
	ClientOptions []option.ClientOption
}

// Client wraps the Google Sheets API for the bot's spreadsheet.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	logf          logger.Logf
	store         store.Store
	catalogTTL    time.Duration

	catalog *syncx.Protected[*catalogCache]
	breaker *syncx.Protected[*breakerState]

	sleep func(context.Context, time.Duration) bool
}

type catalogCache struct {
	services []Service
	loadedAt time.Time
}

type breakerState struct {
	consecutiveFailures int
	openedAt            time.Time
}

// NewClient creates a Client for the given spreadsheet.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet ID is empty")
	}
	svc, err := sheetsapi.NewService(ctx, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("sheets: creating service: %w", err)
	}

	c := &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		logf:          cfg.Logf,
		store:         cfg.Store,
		catalogTTL:    cfg.CatalogTTL,
		catalog:       syncx.Protect(&catalogCache{}),
		breaker:       syncx.Protect(&breakerState{}),
		sleep:         sleep,
	}
	if c.logf == nil {
		c.logf = func(format string, args ...any) {}
	}
	if c.catalogTTL == 0 {
		c.catalogTTL = 10 * time.Minute
	}
	return c, nil
}

// Catalog returns the service catalog, reading from the spreadsheet at most
// once per TTL. A stale copy is served when the spreadsheet is unreachable
// and a cached copy exists.
func (c *Client) Catalog(ctx context.Context) ([]Service, error) {
	var cached []Service
	var fresh bool
	c.catalog.RAccess(func(cc *catalogCache) {
		if cc.services != nil && time.Since(cc.loadedAt) < c.catalogTTL {
			cached = cc.services
			fresh = true
		} else {
			cached = cc.services
		}
	})
	if fresh {
		return cached, nil
	}

	services, err := c.fetchCatalog(ctx)
	if err != nil {
		if cached != nil {
			c.logf("sheets: catalog refresh failed, serving stale copy: %v", err)
			return cached, nil
		}
		return nil, err
	}

	c.catalog.Access(func(cc *catalogCache) {
		cc.services = services
		cc.loadedAt = time.Now()
	})
	return services, nil
}

func (c *Client) fetchCatalog(ctx context.Context) ([]Service, error) {
	var resp *sheetsapi.ValueRange
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, catalogRange).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sheets: reading catalog: %w", err)
	}

	var services []Service
	for _, row := range resp.Values {
		s := parseServiceRow(row)
		if s == nil {
			continue
		}
		services = append(services, *s)
	}
	return services, nil
}

func parseServiceRow(row []any) *Service {
	if len(row) < 2 {
		return nil
	}
	s := &Service{
		Category: cellString(row[0]),
		Name:     cellString(row[1]),
	}
	if s.Category == "" || s.Name == "" {
		return nil
	}
	if len(row) > 2 {
		s.Description = cellString(row[2])
	}
	if len(row) > 3 {
		s.Price = cellString(row[3])
	}
	return s
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// AppendLead writes a lead to the leads sheet. When the write fails after
// retries, the lead is queued in the store and delivered later by
// [Client.FlushPending].
func (c *Client) AppendLead(ctx context.Context, lead Lead) error {
	if err := c.appendLeadNow(ctx, lead); err != nil {
		if c.store == nil {
			return err
		}
		c.logf("sheets: appending lead failed, queueing for retry: %v", err)
		return c.enqueueLead(ctx, lead)
	}
	return nil
}

func (c *Client) appendLeadNow(ctx context.Context, lead Lead) error {
	vr := &sheetsapi.ValueRange{
		Values: [][]any{{
			lead.Time.Format(time.RFC3339),
			strconv.FormatInt(lead.UserID, 10),
			lead.Username,
			lead.Name,
			lead.Phone,
			lead.Topic,
			lead.Details,
		}},
	}
	return c.withRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, leadsRange, vr).
			ValueInputOption("USER_ENTERED").
			Context(ctx).Do()
		return err
	})
}

func (c *Client) enqueueLead(ctx context.Context, lead Lead) error {
	b, err := json.Marshal(lead)
	if err != nil {
		return err
	}
	key := pendingLeadPrefix + lead.Time.UTC().Format(time.RFC3339Nano) + ":" + strconv.FormatInt(lead.UserID, 10)
	return c.store.Set(ctx, key, b)
}

// FlushPending tries to deliver leads queued by earlier failed writes. It
// stops at the first failure; the rest stay queued.
func (c *Client) FlushPending(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	keys, err := c.store.Keys(ctx, pendingLeadPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		b, err := c.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if b == nil {
			continue
		}
		var lead Lead
		if err := json.Unmarshal(b, &lead); err != nil {
			// A record we can't decode will never deliver; drop it.
			c.logf("sheets: dropping undecodable pending lead %s: %v", key, err)
			c.store.Delete(ctx, key)
			continue
		}
		if err := c.appendLeadNow(ctx, lead); err != nil {
			return err
		}
		if err := c.store.Delete(ctx, key); err != nil {
			return err
		}
		c.logf("sheets: delivered pending lead %s", key)
	}
	return nil
}

// PendingCount reports how many leads are queued for delivery.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	keys, err := c.store.Keys(ctx, pendingLeadPrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// LeadCount returns the number of rows in the leads sheet.
func (c *Client) LeadCount(ctx context.Context) (int, error) {
	var resp *sheetsapi.ValueRange
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, leadsRange).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sheets: counting leads: %w", err)
	}
	return len(resp.Values), nil
}

// Healthy reports whether the circuit breaker is closed.
func (c *Client) Healthy() bool {
	var open bool
	c.breaker.RAccess(func(b *breakerState) {
		open = b.consecutiveFailures >= breakerThreshold && time.Since(b.openedAt) < breakerCooldown
	})
	return !open
}

// withRetry runs fn with exponential backoff and feeds the circuit breaker.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if !c.Healthy() {
		return ErrUnavailable
	}

	var err error
	for attempt := range retryLimit {
		err = fn()
		if err == nil {
			c.breaker.Access(func(b *breakerState) {
				b.consecutiveFailures = 0
			})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < retryLimit-1 {
			wait := retryBaseDur << attempt
			c.logf("sheets: attempt %d failed, retrying in %s: %v", attempt+1, wait, err)
			if !c.sleep(ctx, wait) {
				return ctx.Err()
			}
		}
	}

	c.breaker.Access(func(b *breakerState) {
		b.consecutiveFailures++
		if b.consecutiveFailures >= breakerThreshold {
			b.openedAt = time.Now()
			c.logf("sheets: %d consecutive failures, backing off for %s", b.consecutiveFailures, breakerCooldown)
		}
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
