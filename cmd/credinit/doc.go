// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Credinit reconstructs the Google service account key file from the
environment, writes it to disk and hands off to another program.

The key can be supplied through the following environment variables,
in order of precedence:

  - GOOGLE_CREDENTIALS_B64_1 and GOOGLE_CREDENTIALS_B64_2: the
    base64-encoded key split in two parts (for platforms that cap
    the size of a single environment variable)
  - GOOGLE_CREDENTIALS_BASE64: the whole key, base64-encoded
  - GOOGLE_CREDENTIALS_JSON: the raw key JSON

The file is written atomically with mode 0600 to the path in
GOOGLE_CREDENTIALS_PATH (google_credentials.json by default). A key
that doesn't parse or has a malformed private key aborts the start
so a broken deployment is caught before the bot runs. When no source
is set, credinit logs a warning and starts the command anyway: the
bot itself decides which features it can serve without a key.

# Usage

	$ credinit [flags...] -- <command> [args...]

For example, in a Dockerfile:

	ENTRYPOINT ["credinit", "--", "legalbot"]
*/
package main

import (
	_ "embed"

	"go.solispartners.kz/bot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
