// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gemini implements [llm.Model] on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/tgrelay/internal/llm"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Config configures a [Model].
type Config struct {
	APIKey string
	// Model is the Gemini model name, for example "gemini-1.5-flash".
	Model string
	// Timeout bounds each call. Zero means no timeout besides the context.
	Timeout time.Duration
	// Rate limits calls per second, with an equal burst. Zero means no limit.
	Rate float64
	// HTTPClient is an optional HTTP client used for API calls.
	HTTPClient *http.Client
}

// Model talks to Gemini.
type Model struct {
	client  *genai.Client
	name    string
	timeout time.Duration
	limiter *rate.Limiter
}

// New returns a Model. Call Close when done.
func New(ctx context.Context, c Config) (*Model, error) {
	if c.APIKey == "" {
		return nil, errors.New("gemini: empty API key")
	}
	if c.Model == "" {
		return nil, errors.New("gemini: empty model name")
	}

	opts := []option.ClientOption{option.WithAPIKey(c.APIKey)}
	if c.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.HTTPClient))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	m := &Model{
		client:  client,
		name:    c.Model,
		timeout: c.Timeout,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	if c.Rate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(c.Rate), max(1, int(c.Rate)))
	}
	return m, nil
}

// Close releases the underlying client.
func (m *Model) Close() error { return m.client.Close() }

// Generate implements [llm.Model].
func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	history, last, err := toContents(req.History)
	if err != nil {
		return nil, &llm.UnavailableError{Err: err}
	}

	gm := m.client.GenerativeModel(m.name)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	gm.Tools = toTools(req.Tools)

	ctx, cancel := m.prepare(ctx)
	defer cancel()
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, &llm.UnavailableError{Err: err}
	}

	cs := gm.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, unavailable(err)
	}
	out, err := fromResponse(resp)
	if err != nil {
		return nil, &llm.UnavailableError{Err: err}
	}
	return out, nil
}

// GenerateJSON asks the model for a JSON document conforming to schema.
func (m *Model) GenerateJSON(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	gm := m.client.GenerativeModel(m.name)
	gm.ResponseMIMEType = "application/json"
	if schema != nil {
		gm.ResponseSchema = toSchema(schema)
	}

	ctx, cancel := m.prepare(ctx)
	defer cancel()
	if err := m.limiter.Wait(ctx); err != nil {
		return "", &llm.UnavailableError{Err: err}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", unavailable(err)
	}
	out, err := fromResponse(resp)
	if err != nil {
		return "", &llm.UnavailableError{Err: err}
	}
	if out.Text == "" {
		return "", &llm.UnavailableError{Err: errors.New("empty JSON response")}
	}
	return out.Text, nil
}

func (m *Model) prepare(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

func unavailable(err error) error {
	ue := &llm.UnavailableError{Err: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		ue.StatusCode = gerr.Code
	}
	return ue
}

// fromResponse extracts text or the first function call from the first
// candidate.
func fromResponse(resp *genai.GenerateContentResponse) (*llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return nil, fmt.Errorf("empty candidate (finish reason %v)", cand.FinishReason)
	}

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		switch p := p.(type) {
		case genai.FunctionCall:
			return &llm.Response{ToolCall: &llm.ToolCall{Name: p.Name, Args: p.Args}}, nil
		case *genai.FunctionCall:
			return &llm.Response{ToolCall: &llm.ToolCall{Name: p.Name, Args: p.Args}}, nil
		case genai.Text:
			text.WriteString(string(p))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("response has no text (finish reason %v)", cand.FinishReason)
	}
	return &llm.Response{Text: text.String()}, nil
}
