// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package uitools implements tools that send rich messages to the current
// chat: quiz polls and button menus.
package uitools

import (
	"context"
	"log/slog"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/tools"
)

// Tool names.
const (
	QuizPollName = "send_quiz_poll"
	ButtonsName  = "send_buttons"
)

// QuizPoll is the send_quiz_poll tool.
type QuizPoll struct {
	Logger *slog.Logger
}

// Decl implements [tools.Tool].
func (*QuizPoll) Decl() tools.Decl {
	return tools.Decl{
		Name:        QuizPollName,
		Description: "Sends a quiz poll with exactly four options to the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "minLength": 1},
				"options": map[string]any{
					"type":        "array",
					"description": "Exactly four answer options.",
					"items":       map[string]any{"type": "string", "minLength": 1},
					"minItems":    delivery.QuizOptions,
					"maxItems":    delivery.QuizOptions,
				},
				"correct_option_index": map[string]any{
					"type":        "integer",
					"description": "Index of the correct option, 0 to 3.",
					"minimum":     0,
					"maximum":     delivery.QuizOptions - 1,
				},
				"explanation": map[string]any{
					"type":        "string",
					"description": "Shown when the user answers wrong.",
				},
			},
			"required": []string{"question", "options", "correct_option_index"},
		},
	}
}

// Call implements [tools.Tool].
func (q *QuizPoll) Call(ctx context.Context, env *tools.Env, args map[string]any) tools.Result {
	idx, _ := tools.Int(args, "correct_option_index")
	p := delivery.Quiz{
		Question:           tools.String(args, "question"),
		Options:            tools.Strings(args, "options"),
		CorrectOptionIndex: idx,
		Explanation:        tools.String(args, "explanation"),
	}
	return send(ctx, env, p, logger(q.Logger), "Quiz sent to the user.")
}

// Buttons is the send_buttons tool.
type Buttons struct {
	Logger *slog.Logger
}

// Decl implements [tools.Tool].
func (*Buttons) Decl() tools.Decl {
	button := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":          map[string]any{"type": "string", "minLength": 1},
			"callback_data": map[string]any{"type": "string", "minLength": 1, "maxLength": 64},
		},
		"required": []string{"text", "callback_data"},
	}
	return tools.Decl{
		Name:        ButtonsName,
		Description: "Sends a message with rows of clickable inline buttons to the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string", "minLength": 1},
				"buttons": map[string]any{
					"type":        "array",
					"description": "Rows of buttons.",
					"minItems":    1,
					"items": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items":    button,
					},
				},
			},
			"required": []string{"text", "buttons"},
		},
	}
}

// Call implements [tools.Tool].
func (b *Buttons) Call(ctx context.Context, env *tools.Env, args map[string]any) tools.Result {
	p := delivery.Buttons{Text: tools.String(args, "text")}
	rows, _ := args["buttons"].([]any)
	for _, r := range rows {
		cells, _ := r.([]any)
		var row []delivery.Button
		for _, c := range cells {
			m, _ := c.(map[string]any)
			row = append(row, delivery.Button{
				Text:         tools.String(m, "text"),
				CallbackData: tools.String(m, "callback_data"),
			})
		}
		p.Rows = append(p.Rows, row)
	}
	return send(ctx, env, p, logger(b.Logger), "Message with buttons sent to the user.")
}

func send(ctx context.Context, env *tools.Env, p delivery.Payload, l *slog.Logger, ok string) tools.Result {
	if err := p.Validate(); err != nil {
		return tools.Failure("Error: %v", err)
	}
	if err := env.Deliver(ctx, p); err != nil {
		l.Error("delivery from tool failed", "err", err)
		return tools.Failure("Error sending to the user: %v", err)
	}
	return tools.Result{Text: ok}
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
