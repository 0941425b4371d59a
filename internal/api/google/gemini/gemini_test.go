// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package gemini

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.solispartners.kz/bot/internal/testutil"
)

func TestGenerateContent(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.URL.Path, "/models/gemini-2.0-flash:generateContent")
		testutil.AssertEqual(t, r.Header.Get("x-goog-api-key"), "key")

		var params GenerateContentParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, params.Contents[0].Parts[0].Text, "What is a public offer?")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [
				{"content": {"parts": [{"text": "A public offer is "}, {"text": "a proposal addressed to everyone."}], "role": "model"}}
			]
		}`))
	}))
	defer ts.Close()

	c := &Client{APIKey: "key", APIURL: ts.URL, HTTPClient: ts.Client()}
	resp, err := c.GenerateContent(t.Context(), "gemini-2.0-flash", GenerateContentParams{
		Contents: []*Content{{Parts: []*Part{{Text: "What is a public offer?"}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, resp.Text(), "A public offer is a proposal addressed to everyone.")
}

func TestGenerateContentEmptyModel(t *testing.T) {
	t.Parallel()

	c := &Client{APIKey: "key"}
	if _, err := c.GenerateContent(t.Context(), "", GenerateContentParams{}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestTextEmptyResponse(t *testing.T) {
	t.Parallel()

	r := &GenerateContentResponse{}
	testutil.AssertEqual(t, r.Text(), "")
}
