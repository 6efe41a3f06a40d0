// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package tools defines tools the language model can call and a registry
// that validates and dispatches such calls.
//
// Tool failures never escape as Go errors: every outcome, including an
// unknown tool name or malformed arguments, is a [Result] whose text is fed
// back to the model.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.astrophena.name/tgrelay/internal/delivery"

	"github.com/xeipuuv/gojsonschema"
)

// Decl declares a tool to the language model.
type Decl struct {
	Name        string
	Description string
	// Parameters is a JSON schema of the arguments object.
	Parameters map[string]any
}

// Result is the outcome of a tool call.
type Result struct {
	// Text is shown to the model. For failures it describes what went wrong.
	Text string
	// Data is an optional structured result.
	Data map[string]any
	// Failed is set when the call did not succeed.
	Failed bool
}

// Failure returns a failed Result with the formatted text.
func Failure(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...), Failed: true}
}

// Env carries what a tool needs from the current conversation.
type Env struct {
	Deliverer delivery.Deliverer
	Target    delivery.Target
}

// Deliver sends p to the current chat.
func (e *Env) Deliver(ctx context.Context, p delivery.Payload) error {
	if e == nil || e.Deliverer == nil {
		return fmt.Errorf("no delivery channel available")
	}
	return e.Deliverer.Deliver(ctx, e.Target, p)
}

// Tool is a function callable by the language model.
type Tool interface {
	Decl() Decl
	// Call runs the tool. Arguments are already validated against the
	// declared schema.
	Call(ctx context.Context, env *Env, args map[string]any) Result
}

// ToolNotFoundError is returned when the model asks for a tool that is not
// registered.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("unknown tool requested: %q", e.Name)
}

// Registry holds the registered tools.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
	order   []string
}

// NewRegistry returns a Registry with ts. It fails on duplicate names or
// invalid parameter schemas.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}
	for _, t := range ts {
		d := t.Decl()
		if d.Name == "" {
			return nil, fmt.Errorf("tools: tool with empty name")
		}
		if _, dup := r.tools[d.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", d.Name)
		}
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
		if err != nil {
			return nil, fmt.Errorf("tools: invalid schema of %q: %w", d.Name, err)
		}
		r.tools[d.Name] = t
		r.schemas[d.Name] = schema
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Decls returns the declarations of all tools in registration order.
func (r *Registry) Decls() []Decl {
	if r == nil {
		return nil
	}
	decls := make([]Decl, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Decl())
	}
	return decls
}

// Names returns the sorted names of all tools.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := slices.Clone(r.order)
	slices.Sort(names)
	return names
}

// Lookup returns the tool with name, or a [*ToolNotFoundError].
func (r *Registry) Lookup(name string) (Tool, error) {
	if r != nil {
		if t, ok := r.tools[name]; ok {
			return t, nil
		}
	}
	return nil, &ToolNotFoundError{Name: name}
}

// Call validates args and runs the tool with name.
func (r *Registry) Call(ctx context.Context, env *Env, name string, args map[string]any) (res Result) {
	t, err := r.Lookup(name)
	if err != nil {
		return Failure("%v", err)
	}
	if args == nil {
		args = make(map[string]any)
	}
	if err := r.validate(name, args); err != nil {
		return Failure("invalid arguments for %s: %v", name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			res = Failure("tool %s failed unexpectedly: %v", name, p)
		}
	}()
	return t.Call(ctx, env, args)
}

func (r *Registry) validate(name string, args map[string]any) error {
	// Round-trip through JSON so that the validator sees the same types the
	// model sent (numbers as float64, etc.).
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	res, err := r.schemas[name].Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return err
	}
	return resultError(res)
}

// ValidateJSON checks that data conforms to schema.
func ValidateJSON(schema map[string]any, data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}
	return resultError(res)
}

func resultError(res *gojsonschema.Result) error {
	if res.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// String returns the string argument key, or an empty string.
func String(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Int returns the integer argument key. JSON numbers arrive as float64.
func Int(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Strings returns the string array argument key.
func Strings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
