// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.solispartners.kz/bot/internal/digest"
	"go.solispartners.kz/bot/internal/telegram"
)

// runJobs runs the periodic background jobs until ctx is canceled.
func (e *engine) runJobs(ctx context.Context) {
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()
	backup := time.NewTicker(backupInterval)
	defer backup.Stop()
	dig := time.NewTicker(digestInterval)
	defer dig.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			e.flushPending(ctx)
		case <-backup.C:
			e.backup(ctx)
		case <-dig.C:
			e.postDigest(ctx)
		}
	}
}

// flushPending retries leads that failed to reach the spreadsheet.
func (e *engine) flushPending(ctx context.Context) {
	if e.sheetsc == nil {
		return
	}
	if err := e.sheetsc.FlushPending(ctx); err != nil {
		e.logf("Flushing pending leads: %v", err)
	}
}

// postDigest collects fresh news items and posts them to the digest chat.
func (e *engine) postDigest(ctx context.Context) {
	if e.dig == nil || e.digestChatID == 0 {
		return
	}

	items, err := e.dig.Collect(ctx)
	if err != nil {
		e.logf("Collecting digest: %v", err)
		e.errNotify(ctx, err)
		return
	}
	text := digest.Format(items)
	if text == "" {
		e.logf("Digest: nothing new to post.")
		return
	}

	if err := e.tg.Send(ctx, telegram.OutgoingMessage{
		ChatID:             e.digestChatID,
		Text:               text,
		ParseMode:          "HTML",
		DisableLinkPreview: true,
	}); err != nil {
		e.logf("Posting digest: %v", err)
		e.errNotify(ctx, err)
		return
	}
	e.logf("Posted digest with %d items.", len(items))
}

// backup uploads a snapshot of the store to Drive and prunes old snapshots,
// keeping the [backupKeepCount] most recent ones.
func (e *engine) backup(ctx context.Context) {
	if e.drivec == nil {
		return
	}

	snapshot, err := e.exportStore(ctx)
	if err != nil {
		e.logf("Exporting store for backup: %v", err)
		e.errNotify(ctx, err)
		return
	}

	name := "legalbot-state-" + time.Now().UTC().Format("20060102-150405") + ".json"
	id, err := e.drivec.Upload(ctx, name, "application/json", snapshot)
	if err != nil {
		e.logf("Uploading backup: %v", err)
		e.errNotify(ctx, err)
		return
	}
	e.logf("Uploaded backup %s (%s).", name, id)

	files, err := e.drivec.List(ctx)
	if err != nil {
		e.logf("Listing backups: %v", err)
		return
	}
	// List returns oldest first.
	for len(files) > backupKeepCount {
		f := files[0]
		files = files[1:]
		if err := e.drivec.Delete(ctx, f.ID); err != nil {
			e.logf("Pruning backup %s: %v", f.Name, err)
			return
		}
		e.logf("Pruned backup %s.", f.Name)
	}
}

// exportStore serializes every store entry into a single JSON document.
// Values are raw bytes, so they end up base64-encoded.
func (e *engine) exportStore(ctx context.Context) ([]byte, error) {
	keys, err := e.store.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	entries := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := e.store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", k, err)
		}
		if v == nil {
			continue
		}
		entries[k] = v
	}

	return json.MarshalIndent(map[string]any{
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"entries":     entries,
	}, "", "  ")
}
