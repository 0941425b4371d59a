// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package creds reconstructs the Google service account key file from the
// environment.
//
// Some deployment platforms cap the size of a single environment variable
// below the size of a service account key, so the key can be supplied
// base64-encoded in two halves. The sources, in order of precedence:
//
//  1. GOOGLE_CREDENTIALS_B64_1 + GOOGLE_CREDENTIALS_B64_2: the base64-encoded
//     key split in two parts, concatenated before decoding.
//  2. GOOGLE_CREDENTIALS_BASE64: the whole key, base64-encoded.
//  3. GOOGLE_CREDENTIALS_JSON: the raw key JSON.
//  4. An existing file at GOOGLE_CREDENTIALS_PATH.
//
// The first source present wins; later ones are ignored even if set.
package creds

import (
	"cmp"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"go.solispartners.kz/bot/internal/api/google/serviceaccount"
	"go.solispartners.kz/bot/internal/atomicio"
	"go.solispartners.kz/bot/internal/logger"
)

// DefaultPath is where the key file is written when GOOGLE_CREDENTIALS_PATH
// is not set.
const DefaultPath = "google_credentials.json"

var (
	// ErrNoSource is returned when no credential source is configured and no
	// key file exists on disk.
	ErrNoSource = errors.New("no credential source configured")
	// ErrInvalidKey is returned when the key material from any source fails
	// validation.
	ErrInvalidKey = errors.New("invalid service account key")
)

// Source identifies where the key material came from.
type Source string

// Possible credential sources.
const (
	SourceSplit    Source = "split base64 (GOOGLE_CREDENTIALS_B64_1/2)"
	SourceBase64   Source = "base64 (GOOGLE_CREDENTIALS_BASE64)"
	SourceJSON     Source = "raw JSON (GOOGLE_CREDENTIALS_JSON)"
	SourceExisting Source = "existing file"
)

// Resolve picks the highest-precedence credential source present in the
// environment and returns the decoded key bytes. It returns [ErrNoSource]
// when no environment source is set; an existing file on disk is handled by
// [Materialize], not here.
func Resolve(getenv func(string) string) (Source, []byte, error) {
	if p1 := getenv("GOOGLE_CREDENTIALS_B64_1"); p1 != "" {
		p2 := getenv("GOOGLE_CREDENTIALS_B64_2")
		b, err := decodeBase64(p1 + p2)
		if err != nil {
			return SourceSplit, nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidKey, SourceSplit, err)
		}
		return SourceSplit, b, nil
	}
	if b64 := getenv("GOOGLE_CREDENTIALS_BASE64"); b64 != "" {
		b, err := decodeBase64(b64)
		if err != nil {
			return SourceBase64, nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidKey, SourceBase64, err)
		}
		return SourceBase64, b, nil
	}
	if raw := getenv("GOOGLE_CREDENTIALS_JSON"); raw != "" {
		return SourceJSON, []byte(raw), nil
	}
	return "", nil, ErrNoSource
}

// decodeBase64 decodes s, ignoring any whitespace that crept in when the
// value was pasted into a deployment UI.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some tools strip the trailing padding.
		if b2, err2 := base64.RawStdEncoding.DecodeString(s); err2 == nil {
			return b2, nil
		}
		return nil, err
	}
	return b, nil
}

// Path returns the key file path from the environment, falling back to
// [DefaultPath].
func Path(getenv func(string) string) string {
	return cmp.Or(getenv("GOOGLE_CREDENTIALS_PATH"), DefaultPath)
}

// Materialize reconstructs the key file on disk and returns its path and the
// source used.
//
// The key from any source must parse as service account JSON and pass
// [serviceaccount.Key.Validate]; otherwise Materialize returns an error
// wrapping [ErrInvalidKey] and leaves any existing file untouched. When no
// environment source is set, an existing valid file at the key path is used
// as is; if there is none, Materialize returns [ErrNoSource] and the caller
// decides whether that is fatal.
func Materialize(getenv func(string) string, logf logger.Logf) (path string, src Source, err error) {
	path = Path(getenv)

	src, data, err := Resolve(getenv)
	if errors.Is(err, ErrNoSource) {
		existing, rerr := os.ReadFile(path)
		if rerr != nil {
			if os.IsNotExist(rerr) {
				return path, "", ErrNoSource
			}
			return path, "", rerr
		}
		if verr := validateKey(existing); verr != nil {
			return path, SourceExisting, verr
		}
		logf("creds: no environment source set, using existing key file at %s", path)
		return path, SourceExisting, nil
	}
	if err != nil {
		return path, src, err
	}

	if verr := validateKey(data); verr != nil {
		return path, src, fmt.Errorf("from %s: %w", src, verr)
	}

	if err := atomicio.WriteFile(path, data, 0o600); err != nil {
		return path, src, fmt.Errorf("writing %s: %w", path, err)
	}
	logf("creds: wrote key file to %s from %s", path, src)
	return path, src, nil
}

func validateKey(b []byte) error {
	key, err := serviceaccount.LoadKey(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}
