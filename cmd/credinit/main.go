// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.solispartners.kz/bot/internal/cli"
	"go.solispartners.kz/bot/internal/creds"
)

func main() { cli.Main(new(app)) }

type app struct {
	// stubbed in tests
	execve  func(argv0 string, argv, envv []string) error
	environ func() []string
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	if a.execve == nil {
		a.execve = syscall.Exec
	}
	if a.environ == nil {
		a.environ = os.Environ
	}

	path, src, err := creds.Materialize(env.Getenv, env.Logf)
	switch {
	case errors.Is(err, creds.ErrNoSource):
		env.Logf("credinit: no credential source configured, continuing without a key file")
	case err != nil:
		return err
	default:
		env.Logf("credinit: key file at %s (%s)", path, src)
	}

	if len(env.Args) == 0 {
		return nil
	}

	argv0, err := exec.LookPath(env.Args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", cli.ErrInvalidArgs, err)
	}

	environ := append(a.environ(),
		"GOOGLE_CREDENTIALS_PATH="+path,
		"GOOGLE_APPLICATION_CREDENTIALS="+path,
	)
	return a.execve(argv0, env.Args, environ)
}
