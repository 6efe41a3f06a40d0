// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package cli runs command-line programs: it parses flags, handles -version
// and passes the process environment to the program through a context.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.astrophena.name/tgrelay/internal/version"
)

// App is a command-line program.
type App interface {
	// Run runs the program. The environment is available through [GetEnv].
	Run(context.Context) error
}

// HasFlags is an [App] that defines flags.
type HasFlags interface {
	App
	Flags(*flag.FlagSet)
}

// AppFunc adapts a function to the [App] interface. It has no flags.
type AppFunc func(context.Context) error

// Run calls f(ctx).
func (f AppFunc) Run(ctx context.Context) error { return f(ctx) }

// Env is the environment a program runs in.
type Env struct {
	Args   []string
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// OSEnv returns the environment of the current process.
func OSEnv() *Env {
	return &Env{
		Args:   os.Args[1:],
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

type envKey struct{}

// WithEnv returns a copy of ctx carrying env.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the environment stored in ctx by [WithEnv], or [OSEnv] if
// there is none.
func GetEnv(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return OSEnv()
}

// ErrExitVersion is returned by [Run] after printing the version.
var ErrExitVersion = &silentError{errors.New("version flag exit")}

// ErrInvalidArgs reports bad command-line arguments. Wrap it with a message
// that tells the user what is wrong.
var ErrInvalidArgs = errors.New("invalid arguments")

// silentError is an error that has already been reported to the user.
type silentError struct{ err error }

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

func isPrintableError(err error) bool {
	var se *silentError
	return !errors.Is(err, flag.ErrHelp) && !errors.As(err, &se)
}

// Main runs app until it returns or the process gets SIGINT or SIGTERM. A
// non-nil error is printed and the process exits with status 1.
func Main(app App) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Run(WithEnv(ctx, OSEnv()), app)
	stop()
	if err == nil {
		return
	}
	if isPrintableError(err) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}

// Run parses the flags found in the environment of ctx and runs app with the
// remaining arguments.
func Run(ctx context.Context, app App) error {
	env := GetEnv(ctx)

	fs := flag.NewFlagSet(version.CmdName(), flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	if fa, ok := app.(HasFlags); ok {
		fa.Flags(fs)
	}
	var showVersion bool
	if fs.Lookup("version") == nil {
		fs.BoolVar(&showVersion, "version", false, "Show version.")
	}
	fs.Usage = func() {
		if docSrc != nil {
			fmt.Fprintln(env.Stderr, parseDocComment())
		}
		fmt.Fprint(env.Stderr, "Available flags:\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(env.Args); err != nil {
		// The flag package has printed it.
		return &silentError{err}
	}
	if showVersion {
		fmt.Fprint(env.Stderr, version.Version())
		return ErrExitVersion
	}

	runEnv := *env
	runEnv.Args = fs.Args()
	return app.Run(WithEnv(ctx, &runEnv))
}

var docSrc []byte

// SetDocComment sets the source of the program's doc comment, which is shown
// in the -help output. The comment must be a single /* ... */ block whose
// delimiters are on their own lines.
func SetDocComment(src []byte) { docSrc = src }

func parseDocComment() string {
	_, rest, ok := strings.Cut(string(docSrc), "/*\n")
	if !ok {
		return ""
	}
	body, _, _ := strings.Cut(rest, "\n*/")
	return body + "\n"
}
