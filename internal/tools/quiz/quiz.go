// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package quiz implements the create_quiz tool, which asks the language
// model for a single multiple-choice question on a topic.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/tools"
)

// Name is the tool name.
const Name = "create_quiz"

// Generator produces a JSON document from a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema map[string]any) (string, error)
}

// Schema is the JSON schema of a generated quiz.
var Schema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"question": map[string]any{"type": "string", "minLength": 1},
		"options": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1},
			"minItems": delivery.QuizOptions,
			"maxItems": delivery.QuizOptions,
		},
		"correct_option_index": map[string]any{
			"type":    "integer",
			"minimum": 0,
			"maximum": delivery.QuizOptions - 1,
		},
		"explanation": map[string]any{"type": "string"},
	},
	"required": []string{"question", "options", "correct_option_index", "explanation"},
}

// Quiz is a generated quiz question.
type Quiz struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation"`
}

// Payload converts q to a delivery payload.
func (q Quiz) Payload() delivery.Quiz {
	return delivery.Quiz{
		Question:           q.Question,
		Options:            q.Options,
		CorrectOptionIndex: q.CorrectOptionIndex,
		Explanation:        q.Explanation,
	}
}

// Apology is returned to the model when a quiz cannot be generated.
const Apology = "Sorry, I can't make a quiz right now."

var promptTmpl = template.Must(template.New("prompt").Parse(`Create a single, interesting multiple-choice quiz question about the topic: {{printf "%q" .}}.
Respond with a single valid JSON object only, with these exact keys:
"question" (string), "options" (a list of exactly 4 strings),
"correct_option_index" (a number from 0 to 3) and "explanation"
(string, shown when the user answers wrong).`))

// Tool is the create_quiz tool.
type Tool struct {
	Generator Generator
	Logger    *slog.Logger
}

// Decl implements [tools.Tool].
func (t *Tool) Decl() tools.Decl {
	return tools.Decl{
		Name: Name,
		Description: "Creates one multiple-choice quiz question about a topic. Use it when the user " +
			"wants to test their knowledge or play a game. Returns the question, options, correct " +
			"option index and explanation; send it to the user with send_quiz_poll.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "Topic of the question, decided from the conversation.",
					"minLength":   1,
				},
			},
			"required": []string{"topic"},
		},
	}
}

// Call implements [tools.Tool].
func (t *Tool) Call(ctx context.Context, _ *tools.Env, args map[string]any) tools.Result {
	topic := tools.String(args, "topic")

	q, err := t.Generate(ctx, topic)
	if err != nil {
		t.logger().Error("creating quiz failed", "topic", topic, "err", err)
		return tools.Failure(Apology)
	}

	b, err := json.Marshal(q)
	if err != nil {
		return tools.Failure(Apology)
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return tools.Failure(Apology)
	}
	return tools.Result{
		Text: "Quiz created: " + string(b),
		Data: data,
	}
}

// Generate makes exactly one call to the generator and validates its output.
func (t *Tool) Generate(ctx context.Context, topic string) (Quiz, error) {
	var prompt strings.Builder
	if err := promptTmpl.Execute(&prompt, topic); err != nil {
		return Quiz{}, err
	}

	out, err := t.Generator.GenerateJSON(ctx, prompt.String(), Schema)
	if err != nil {
		return Quiz{}, err
	}
	return Parse(out)
}

// Parse decodes and validates a generated quiz. Markdown code fences around
// the JSON are ignored.
func Parse(s string) (Quiz, error) {
	s = stripFences(s)
	if err := tools.ValidateJSON(Schema, []byte(s)); err != nil {
		return Quiz{}, fmt.Errorf("invalid quiz: %w", err)
	}
	var q Quiz
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return Quiz{}, fmt.Errorf("invalid quiz: %w", err)
	}
	return q, q.Payload().Validate()
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (t *Tool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
