// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package gemini

import (
	"errors"
	"maps"

	"go.astrophena.name/tgrelay/internal/session"
	"go.astrophena.name/tgrelay/internal/tools"

	"github.com/google/generative-ai-go/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// toContents converts history to Gemini contents. It returns every content
// but the last, which is sent as the new message.
//
// Turns before the first user turn are dropped: they are left over from
// history eviction and Gemini requires a conversation to start with the
// user. Consecutive turns of the same role are merged.
func toContents(history []session.Turn) (prev []*genai.Content, last *genai.Content, err error) {
	start := -1
	for i, t := range history {
		if t.Role == session.RoleUser {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil, errors.New("history has no user turn")
	}

	var contents []*genai.Content
	for _, t := range history[start:] {
		role, part := toPart(t)
		if part == nil {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}

	last = contents[len(contents)-1]
	if last.Role != roleUser {
		return nil, nil, errors.New("history does not end with a user or tool result turn")
	}
	return contents[:len(contents)-1], last, nil
}

func toPart(t session.Turn) (role string, part genai.Part) {
	switch t.Role {
	case session.RoleUser:
		return roleUser, genai.Text(t.Text)
	case session.RoleAssistant:
		return roleModel, genai.Text(t.Text)
	case session.RoleToolCall:
		args := t.Args
		if args == nil {
			args = map[string]any{}
		}
		return roleModel, genai.FunctionCall{Name: t.Tool, Args: args}
	case session.RoleToolResult:
		resp := map[string]any{"result": t.Text}
		if t.Data != nil {
			resp = maps.Clone(t.Data)
			resp["result"] = t.Text
		}
		return roleUser, genai.FunctionResponse{Name: t.Tool, Response: resp}
	}
	return "", nil
}

func toTools(decls []tools.Decl) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if d.Parameters != nil {
			fd.Parameters = toSchema(d.Parameters)
		}
		fds = append(fds, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

var schemaTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// toSchema converts a JSON schema to the subset Gemini understands. Unknown
// keywords, such as length and range constraints, are dropped; arguments are
// validated against the full schema before a tool runs.
func toSchema(js map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := js["type"].(string); ok {
		s.Type = schemaTypes[t]
	}
	s.Description, _ = js["description"].(string)
	s.Format, _ = js["format"].(string)
	s.Enum = stringList(js["enum"])
	s.Required = stringList(js["required"])
	if items, ok := js["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	if props, ok := js["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	return s
}

func stringList(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
