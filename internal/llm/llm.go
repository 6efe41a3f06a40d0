// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package llm defines the boundary between the relay and a language model.
package llm

import (
	"context"
	"fmt"

	"go.astrophena.name/tgrelay/internal/session"
	"go.astrophena.name/tgrelay/internal/tools"
)

// Request is a single generation request.
type Request struct {
	// System is the system instruction.
	System string
	// History is the conversation so far, oldest turn first. The last turn
	// is the one to respond to.
	History []session.Turn
	// Tools are the tools the model may call.
	Tools []tools.Decl
}

// Response is either plain text or a tool call.
type Response struct {
	Text     string
	ToolCall *ToolCall
}

// ToolCall is a request from the model to run a tool.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Model generates responses.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// UnavailableError is returned when the model cannot produce a response:
// network failure, malformed response, quota or authentication errors.
type UnavailableError struct {
	Err error
	// StatusCode is the HTTP status returned by the provider, if known.
	StatusCode int
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("language model unavailable (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("language model unavailable: %v", e.Err)
}

// RateLimited reports whether the provider rejected the request because of
// quota or rate limits.
func (e *UnavailableError) RateLimited() bool { return e.StatusCode == 429 }

func (e *UnavailableError) Unwrap() error { return e.Err }
