// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package drive

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.solispartners.kz/bot/internal/api/google/serviceaccount"
	"go.solispartners.kz/bot/internal/testutil"
)

func testDriveServer(t *testing.T) (*Client, *httptest.Server) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
	})

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "ya29.test"}`))
	})

	c := &Client{
		Key: &serviceaccount.Key{
			Type:        "service_account",
			ClientEmail: "bot@solis-partners.iam.gserviceaccount.com",
			PrivateKey:  string(keyPEM),
			TokenURI:    ts.URL + "/token",
		},
		FolderID:   "folder1",
		HTTPClient: ts.Client(),
		APIURL:     ts.URL,
		UploadURL:  ts.URL + "/upload",
	}
	return c, ts
}

func TestUpload(t *testing.T) {
	t.Parallel()

	c, ts := testDriveServer(t)

	mux := ts.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("POST /upload/files", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Header.Get("Authorization"), "Bearer ya29.test")

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, mediaType, "multipart/related")

		mr := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := mr.NextPart()
		if err != nil {
			t.Fatal(err)
		}
		var meta struct {
			Name    string   `json:"name"`
			Parents []string `json:"parents"`
		}
		if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, meta.Name, "state-backup.json")
		testutil.AssertEqual(t, meta.Parents, []string{"folder1"})

		mediaPart, err := mr.NextPart()
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, mediaPart.Header.Get("Content-Type"), "application/json")
		media, err := io.ReadAll(mediaPart)
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, string(media), `{"data":{}}`)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "file1"}`))
	})

	id, err := c.Upload(t.Context(), "state-backup.json", "application/json", []byte(`{"data":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, id, "file1")
}

func TestList(t *testing.T) {
	t.Parallel()

	c, ts := testDriveServer(t)

	mux := ts.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, "'folder1' in parents") {
			t.Fatalf("unexpected query: %q", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"files": [
				{"id": "old", "name": "backup-2025-05-01.json", "createdTime": "2025-05-01T00:00:00Z"},
				{"id": "new", "name": "backup-2025-06-01.json", "createdTime": "2025-06-01T00:00:00Z"}
			]
		}`))
	})

	files, err := c.List(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(files), 2)
	testutil.AssertEqual(t, files[0].ID, "old")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	c, ts := testDriveServer(t)

	var deleted string
	mux := ts.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("DELETE /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("id")
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Delete(t.Context(), "old"); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, deleted, "old")
}

func TestTokenCached(t *testing.T) {
	t.Parallel()

	c, ts := testDriveServer(t)

	var tokenCalls int
	mux := ts.Config.Handler.(*http.ServeMux)

	// Re-register the token endpoint with a counter.
	c.Key.TokenURI = ts.URL + "/token2"
	mux.HandleFunc("POST /token2", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "ya29.test"}`))
	})
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files": []}`))
	})

	for range 3 {
		if _, err := c.List(t.Context()); err != nil {
			t.Fatal(err)
		}
	}
	testutil.AssertEqual(t, tokenCalls, 1)
}
