// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Legalbot is the SOLIS Partners Telegram bot. It serves the service catalog
from a Google Spreadsheet, answers legal questions with Gemini, collects
client leads and posts a daily digest of legal news.

It long-polls the Telegram Bot API, so it needs no public address; the HTTP
server it starts is for health checks and debug pages only.

# Usage

	$ legalbot [flags...]

# Configuration

Legalbot is configured through environment variables (a .env file in the
working directory is honored):

	TG_TOKEN           Telegram Bot API token (required)
	ADMIN_CHAT_ID      chat that receives error notifications and may run /stats
	SPREADSHEET_ID     spreadsheet with the service catalog and leads
	GEMINI_KEY         Gemini API key for /ask
	DATABASE_URL       state store: mem://, file://path, postgres://... or
	                   sqlite://path (the SQLite backend needs a cgo-enabled build
	                   and is not available in the static container image)
	DRIVE_FOLDER_ID    Drive folder for state backups
	DIGEST_FEEDS       comma-separated feed URLs for the news digest
	DIGEST_CHAT_ID     chat that receives the daily digest
	ADDR               address to serve /health and /debug/ on (default :8080)
*/
package main

import (
	_ "embed"

	"go.solispartners.kz/bot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
