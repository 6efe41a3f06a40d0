// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest runs table tests against [cli.App] implementations.
package clitest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.astrophena.name/tgrelay/internal/cli"
)

// Case is a single invocation of an application.
type Case[App cli.App] struct {
	// Args are the command-line arguments.
	Args []string
	// Env holds the environment variables visible to the application.
	Env map[string]string
	// WantErr, if set, must match the returned error with errors.Is. If it
	// is nil, the application must succeed.
	WantErr error
	// WantInStdout and WantInStderr are substrings the output must contain.
	WantInStdout string
	WantInStderr string
	// CheckFunc, if set, is called after the application returns.
	CheckFunc func(*testing.T, App)
}

// Env returns an environment with the given arguments and variables, along
// with buffers that capture its standard output and standard error.
func Env(args []string, vars map[string]string) (env *cli.Env, stdout, stderr *bytes.Buffer) {
	stdout, stderr = new(bytes.Buffer), new(bytes.Buffer)
	env = &cli.Env{
		Args:   args,
		Getenv: func(name string) string { return vars[name] },
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: stderr,
	}
	return env, stdout, stderr
}

// Run runs every case in parallel against a fresh application made by setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			env, stdout, stderr := Env(tc.Args, tc.Env)
			err := cli.Run(cli.WithEnv(context.Background(), env), app)

			switch {
			case tc.WantErr == nil && err != nil:
				t.Fatalf("unexpected error: %v\nstderr:\n%s", err, stderr)
			case tc.WantErr != nil && !errors.Is(err, tc.WantErr):
				t.Fatalf("got error %v, want %v", err, tc.WantErr)
			}

			if !strings.Contains(stdout.String(), tc.WantInStdout) {
				t.Errorf("stdout must contain %q, got: %q", tc.WantInStdout, stdout)
			}
			if !strings.Contains(stderr.String(), tc.WantInStderr) {
				t.Errorf("stderr must contain %q, got: %q", tc.WantInStderr, stderr)
			}

			if tc.CheckFunc != nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}
