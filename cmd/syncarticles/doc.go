// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Syncarticles publishes articles from the firm's Google Spreadsheet to the
site. It reads the "Статьи сайта" sheet, regenerates src/data/articles.ts in
the site repository and pushes the change; the site redeploys automatically.

# Usage

	$ syncarticles [flags...]

With -dry it prints the generated file instead of writing and pushing. With
-init it creates the sheet, writes the header row and seeds it from the
articles.ts already in the site repository.

# Configuration

Environment variables (a .env file in the working directory is honored):

	SPREADSHEET_ID            spreadsheet with the articles sheet (required)
	GOOGLE_CREDENTIALS_PATH   service account key file (default google_credentials.json)
	SITE_REPO                 path to the site repository checkout
	                          (default legal-partner-pro-review)
*/
package main

import (
	_ "embed"

	"go.solispartners.kz/bot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
