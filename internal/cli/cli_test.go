// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"go.solispartners.kz/bot/internal/testutil"
)

type testApp struct {
	fail    bool
	verbose bool
	ran     bool
	gotArgs []string
}

func (a *testApp) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.verbose, "verbose", false, "Be more verbose.")
}

func (a *testApp) Run(ctx context.Context) error {
	a.ran = true
	a.gotArgs = GetEnv(ctx).Args
	if a.fail {
		return errors.New("failed")
	}
	return nil
}

func testEnv(args ...string) (*Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	}, &stdout, &stderr
}

func TestRun(t *testing.T) {
	t.Parallel()

	app := new(testApp)
	env, _, _ := testEnv("-verbose", "arg1", "arg2")

	if err := Run(WithEnv(context.Background(), env), app); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, app.ran, true)
	testutil.AssertEqual(t, app.verbose, true)
	testutil.AssertEqual(t, app.gotArgs, []string{"arg1", "arg2"})
}

func TestRunError(t *testing.T) {
	t.Parallel()

	app := &testApp{fail: true}
	env, _, _ := testEnv()

	err := Run(WithEnv(context.Background(), env), app)
	if err == nil {
		t.Fatal("want error, got nil")
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	app := new(testApp)
	env, _, stderr := testEnv("-version")

	err := Run(WithEnv(context.Background(), env), app)
	if !errors.Is(err, ErrExitVersion) {
		t.Fatalf("want ErrExitVersion, got %v", err)
	}
	testutil.AssertEqual(t, app.ran, false)
	if stderr.Len() == 0 {
		t.Fatal("nothing printed to stderr")
	}
}

func TestRunInvalidFlag(t *testing.T) {
	t.Parallel()

	app := new(testApp)
	env, _, _ := testEnv("-nonexistent")

	err := Run(WithEnv(context.Background(), env), app)
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if isPrintableError(err) {
		t.Fatalf("flag parse errors must be unprintable, got %v", err)
	}
}

func TestGetEnvDefaults(t *testing.T) {
	t.Parallel()

	// A context without an attached environment falls back to the OS one.
	env := GetEnv(context.Background())
	if env.Getenv == nil || env.Stdout == nil || env.Stderr == nil {
		t.Fatal("OS environment is not fully populated")
	}
}

func TestIsPrintableError(t *testing.T) {
	t.Parallel()

	testutil.AssertEqual(t, isPrintableError(errors.New("some error")), true)
	testutil.AssertEqual(t, isPrintableError(flag.ErrHelp), false)
	testutil.AssertEqual(t, isPrintableError(ErrExitVersion), false)
}
