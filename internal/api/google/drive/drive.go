// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package drive uploads state backups to a Google Drive folder.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.solispartners.kz/bot/internal/api/google/serviceaccount"
	"go.solispartners.kz/bot/internal/request"
)

const (
	defaultAPIURL    = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	scope = "https://www.googleapis.com/auth/drive.file"

	// Access tokens are valid for an hour; refresh with a margin.
	tokenLifetime = 50 * time.Minute
)

// Client uploads files to a single Drive folder on behalf of a service
// account.
type Client struct {
	// Key authenticates the service account.
	Key *serviceaccount.Key
	// FolderID is the Drive folder that receives uploads.
	FolderID string
	// HTTPClient is an optional HTTP client to use for requests.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
	// APIURL and UploadURL override the API endpoints. Used in tests.
	APIURL    string
	UploadURL string

	mu             sync.Mutex
	token          string
	tokenFetchedAt time.Time
}

// File is Drive file metadata.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedTime string `json:"createdTime"`
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return defaultAPIURL
}

func (c *Client) uploadURL() string {
	if c.UploadURL != "" {
		return c.UploadURL
	}
	return defaultUploadURL
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenFetchedAt) < tokenLifetime {
		return c.token, nil
	}

	tok, err := c.Key.AccessToken(ctx, c.HTTPClient, scope)
	if err != nil {
		return "", err
	}
	c.token = tok
	c.tokenFetchedAt = time.Now()
	return tok, nil
}

// Upload creates a file with the given name and content in the configured
// folder and returns its ID.
func (c *Client) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	meta, err := json.Marshal(map[string]any{
		"name":    name,
		"parents": []string{c.FolderID},
	})
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return "", err
	}
	metaPart.Write(meta)

	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return "", err
	}
	mediaPart.Write(data)

	if err := mw.Close(); err != nil {
		return "", err
	}

	f, err := request.Make[File](ctx, request.Params{
		Method: http.MethodPost,
		URL:    c.uploadURL() + "/files?uploadType=multipart&fields=id",
		Body:   body.Bytes(),
		Headers: map[string]string{
			"Authorization": "Bearer " + tok,
			"Content-Type":  "multipart/related; boundary=" + mw.Boundary(),
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return "", err
	}
	return f.ID, nil
}

// List returns the files in the configured folder, oldest first.
func (c *Client) List(ctx context.Context) ([]File, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", "'"+c.FolderID+"' in parents and trashed = false")
	q.Set("orderBy", "createdTime")
	q.Set("fields", "files(id,name,createdTime)")

	type listResponse struct {
		Files []File `json:"files"`
	}
	resp, err := request.Make[listResponse](ctx, request.Params{
		Method: http.MethodGet,
		URL:    c.apiURL() + "/files?" + q.Encode(),
		Headers: map[string]string{
			"Authorization": "Bearer " + tok,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Delete permanently removes a file.
func (c *Client) Delete(ctx context.Context, id string) error {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	_, err = request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodDelete,
		URL:    c.apiURL() + "/files/" + id,
		Headers: map[string]string{
			"Authorization": "Bearer " + tok,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	return err
}
