// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"bytes"
	"os/exec"
	"testing"
)

func TestGofmt(t *testing.T) {
	var w bytes.Buffer
	gofmt := exec.Command("gofmt", "-d", "cmd", "internal", "gofmt_test.go")
	gofmt.Stdout = &w
	gofmt.Stderr = &w
	if err := gofmt.Run(); err != nil {
		t.Fatalf("gofmt failed: %v\n\n%v", err, &w)
	}
	if w.Len() > 0 {
		t.Fatalf("gofmt found unformatted files:\n\n%v", &w)
	}
}
