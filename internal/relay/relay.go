// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package relay implements the conversational loop: it sends the user's
// message with the conversation history to the language model, runs the
// tools the model asks for and returns the model's final answer.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/llm"
	"go.astrophena.name/tgrelay/internal/session"
	"go.astrophena.name/tgrelay/internal/tools"

	"github.com/google/uuid"
)

// DefaultMaxToolRounds is used when Relay.MaxToolRounds is not set.
const DefaultMaxToolRounds = 4

// User-facing replies when no answer could be produced.
const (
	ApologyUnavailable = "Sorry, I can't answer right now. Please try again in a moment."
	ApologyRateLimited = "I'm getting too many requests right now. Please try again in a minute."
	ApologyToolLimit   = "Sorry, I couldn't finish that. Please try asking in a different way."
)

// Outcome describes how an execution ended.
type Outcome int

// Outcomes.
const (
	// Answered means the model produced a final text answer.
	Answered Outcome = iota
	// ToolLimit means the model kept asking for tools past the round limit.
	ToolLimit
	// Failed means the model call failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Answered:
		return "answered"
	case ToolLimit:
		return "tool_limit"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Input is an incoming user message.
type Input struct {
	Text string
	// Target is where tools that talk to the user send their messages.
	Target delivery.Target
	// System is the system instruction for this user.
	System string
}

// Reply is the result of handling a message.
type Reply struct {
	Text    string
	Outcome Outcome
	// ToolRounds is the number of tools executed.
	ToolRounds int
	RunID      string
}

// Relay connects users, the language model and tools.
type Relay struct {
	Model llm.Model
	// Tools may be nil, in which case the model gets no tools.
	Tools *tools.Registry
	// Deliverer is passed to tools that send messages to the user.
	Deliverer delivery.Deliverer
	// MaxToolRounds bounds tool executions per message. Zero means
	// DefaultMaxToolRounds.
	MaxToolRounds int
	Logger        *slog.Logger
}

// Handle processes one user message and returns the reply to deliver.
//
// The caller must hold sess's lock. On a model failure the user's message is
// kept in history, tool turns appended during this call are removed and no
// assistant turn is added, so a retry sees the pending question.
func (r *Relay) Handle(ctx context.Context, sess *session.Session, in Input) Reply {
	runID := uuid.NewString()
	logger := r.logger().With("run_id", runID, "user_id", sess.UserID)

	sess.Append(session.Turn{Role: session.RoleUser, Text: in.Text})
	mark := sess.Mark()
	defer sess.Release()

	env := &tools.Env{Deliverer: r.Deliverer, Target: in.Target}
	maxRounds := cmpOr(r.MaxToolRounds, DefaultMaxToolRounds)

	for rounds := 0; ; rounds++ {
		resp, err := r.Model.Generate(ctx, &llm.Request{
			System:  in.System,
			History: sess.History(),
			Tools:   r.Tools.Decls(),
		})
		if err == nil && resp == nil {
			err = errors.New("nil response")
		}
		if err == nil && resp.ToolCall == nil && strings.TrimSpace(resp.Text) == "" {
			err = errors.New("empty response")
		}
		if err != nil {
			logger.Error("model call failed", "round", rounds, "err", err)
			sess.Rollback(mark)
			return Reply{Text: apologyFor(err), Outcome: Failed, ToolRounds: rounds, RunID: runID}
		}

		if resp.ToolCall == nil {
			sess.Append(session.Turn{Role: session.RoleAssistant, Text: resp.Text})
			logger.Debug("answered", "rounds", rounds)
			return Reply{Text: resp.Text, Outcome: Answered, ToolRounds: rounds, RunID: runID}
		}

		if rounds >= maxRounds {
			logger.Warn("tool round limit reached", "rounds", rounds, "tool", resp.ToolCall.Name)
			sess.Append(session.Turn{Role: session.RoleAssistant, Text: ApologyToolLimit})
			return Reply{Text: ApologyToolLimit, Outcome: ToolLimit, ToolRounds: rounds, RunID: runID}
		}

		call := resp.ToolCall
		sess.Append(session.Turn{Role: session.RoleToolCall, Tool: call.Name, Args: call.Args})
		res := r.Tools.Call(ctx, env, call.Name, call.Args)
		logger.Info("tool executed", "tool", call.Name, "failed", res.Failed)
		sess.Append(session.Turn{Role: session.RoleToolResult, Tool: call.Name, Text: res.Text, Data: res.Data})
	}
}

func apologyFor(err error) string {
	var ue *llm.UnavailableError
	if errors.As(err, &ue) && ue.RateLimited() {
		return ApologyRateLimited
	}
	return ApologyUnavailable
}

func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func cmpOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
