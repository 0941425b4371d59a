// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Healthprobe checks the bot's /health endpoint and exits non-zero when any
subsystem reports a failure. It exists to back the container health check:

	HEALTHCHECK --interval=30s --timeout=10s --retries=3 --start-period=15s \
		CMD ["healthprobe"]

# Usage

	$ healthprobe [flags...]

The probed URL defaults to http://127.0.0.1:8080/health and can be changed
with the -url flag or the HEALTH_URL environment variable.
*/
package main

import (
	_ "embed"

	"go.solispartners.kz/bot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
