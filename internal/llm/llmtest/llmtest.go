// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package llmtest provides a scripted language model for tests.
package llmtest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.astrophena.name/tgrelay/internal/llm"
)

// Step is one scripted reply.
type Step struct {
	Response *llm.Response
	Err      error
}

// Text returns a step replying with plain text.
func Text(s string) Step { return Step{Response: &llm.Response{Text: s}} }

// Call returns a step requesting a tool call.
func Call(name string, args map[string]any) Step {
	return Step{Response: &llm.Response{ToolCall: &llm.ToolCall{Name: name, Args: args}}}
}

// Fail returns a step failing with err.
func Fail(err error) Step { return Step{Err: err} }

// ErrExhausted is returned when the script has no more steps.
var ErrExhausted = errors.New("llmtest: script exhausted")

// Model replies with scripted steps in order and records requests.
type Model struct {
	mu       sync.Mutex
	steps    []Step
	repeat   *Step
	requests []llm.Request
}

// New returns a Model that replies with steps in order.
func New(steps ...Step) *Model { return &Model{steps: steps} }

// Always returns a Model that always replies with step.
func Always(step Step) *Model { return &Model{repeat: &step} }

// Func is an [llm.Model] backed by a function.
type Func func(ctx context.Context, req *llm.Request) (*llm.Response, error)

// Generate calls f(ctx, req).
func (f Func) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return f(ctx, req)
}

// Generate implements [llm.Model].
func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, llm.Request{
		System:  req.System,
		History: slices.Clone(req.History),
		Tools:   slices.Clone(req.Tools),
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var step Step
	switch {
	case m.repeat != nil:
		step = *m.repeat
	case len(m.steps) == 0:
		return nil, ErrExhausted
	default:
		step, m.steps = m.steps[0], m.steps[1:]
	}
	return step.Response, step.Err
}

// Requests returns the requests received so far.
func (m *Model) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

// Calls returns the number of requests received so far.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
