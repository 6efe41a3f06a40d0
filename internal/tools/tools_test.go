// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.astrophena.name/tgrelay/internal/testutil"
)

type echoTool struct {
	panics bool
}

func (echoTool) Decl() Decl {
	return Decl{
		Name:        "echo",
		Description: "Echoes the text back.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string", "minLength": 1},
				"times": map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []string{"text"},
		},
	}
}

func (e echoTool) Call(_ context.Context, _ *Env, args map[string]any) Result {
	if e.panics {
		panic("boom")
	}
	n, ok := Int(args, "times")
	if !ok {
		n = 1
	}
	return Result{Text: strings.Repeat(String(args, "text"), n)}
}

func TestRegistryCall(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(echoTool{})
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]struct {
		name       string
		args       map[string]any
		wantText   string
		wantPrefix string
		wantFailed bool
	}{
		"ok": {
			name:     "echo",
			args:     map[string]any{"text": "hi"},
			wantText: "hi",
		},
		"integer argument": {
			name:     "echo",
			args:     map[string]any{"text": "ab", "times": float64(3)},
			wantText: "ababab",
		},
		"unknown tool": {
			name:       "launch_rockets",
			args:       map[string]any{},
			wantText:   `unknown tool requested: "launch_rockets"`,
			wantFailed: true,
		},
		"missing required argument": {
			name:       "echo",
			args:       nil,
			wantPrefix: "invalid arguments for echo:",
			wantFailed: true,
		},
		"wrong type": {
			name:       "echo",
			args:       map[string]any{"text": 42},
			wantPrefix: "invalid arguments for echo:",
			wantFailed: true,
		},
		"fractional integer": {
			name:       "echo",
			args:       map[string]any{"text": "x", "times": 1.5},
			wantPrefix: "invalid arguments for echo:",
			wantFailed: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			res := r.Call(t.Context(), nil, tc.name, tc.args)
			testutil.AssertEqual(t, res.Failed, tc.wantFailed)
			if tc.wantPrefix != "" {
				if !strings.HasPrefix(res.Text, tc.wantPrefix) {
					t.Fatalf("got %q, want prefix %q", res.Text, tc.wantPrefix)
				}
				return
			}
			testutil.AssertEqual(t, res.Text, tc.wantText)
		})
	}
}

func TestRegistryRecoversPanics(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(echoTool{panics: true})
	if err != nil {
		t.Fatal(err)
	}
	res := r.Call(t.Context(), nil, "echo", map[string]any{"text": "hi"})
	testutil.AssertEqual(t, res, Result{Text: "tool echo failed unexpectedly: boom", Failed: true})
}

func TestNewRegistryErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(echoTool{}, echoTool{}); err == nil {
		t.Fatal("want error for duplicate tool")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(echoTool{})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, r.Names(), []string{"echo"})
	testutil.AssertEqual(t, len(r.Decls()), 1)

	_, err = r.Lookup("nope")
	var nf *ToolNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want *ToolNotFoundError, got %v", err)
	}
	testutil.AssertEqual(t, nf.Name, "nope")
}

func TestEnvDeliverWithoutDeliverer(t *testing.T) {
	t.Parallel()

	var env *Env
	if err := env.Deliver(t.Context(), nil); err == nil {
		t.Fatal("want error without delivery channel")
	}
}

func TestArgumentHelpers(t *testing.T) {
	t.Parallel()

	args := map[string]any{
		"s":     "str",
		"f":     float64(2),
		"list":  []any{"a", "b", 3},
		"slist": []string{"x"},
	}
	testutil.AssertEqual(t, String(args, "s"), "str")
	testutil.AssertEqual(t, String(args, "f"), "")
	n, ok := Int(args, "f")
	testutil.AssertEqual(t, n, 2)
	testutil.AssertEqual(t, ok, true)
	_, ok = Int(args, "s")
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, Strings(args, "list"), []string{"a", "b"})
	testutil.AssertEqual(t, Strings(args, "slist"), []string{"x"})
}

func TestValidateJSON(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"type":     "object",
		"required": []string{"a"},
	}
	if err := ValidateJSON(schema, []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := ValidateJSON(schema, []byte(`{}`)); err == nil {
		t.Fatal("want error")
	}
}
