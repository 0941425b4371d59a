// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

//go:build !cgo

package store

import (
	"context"
	"errors"
	"time"
)

// NewSQLiteStore reports that the SQLite backend is unavailable: the
// driver needs cgo, and this binary was built without it. Static container
// builds use the mem, file or postgres backends instead.
func NewSQLiteStore(ctx context.Context, dsn string, ttl time.Duration) (Store, error) {
	return nil, errors.New("store: the SQLite backend requires a cgo-enabled build; use mem://, file:// or postgres:// instead")
}
