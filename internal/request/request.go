// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request makes JSON HTTP requests.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.astrophena.name/tgrelay/internal/version"
)

// DefaultClient is used when [Params.HTTPClient] is nil.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// MaxResponseSize limits how much of a response body is read.
const MaxResponseSize = 8 << 20

// Params describes a request.
type Params struct {
	Method string
	URL    string
	// Query parameters are added to URL.
	Query map[string]string
	// Body, if not nil, is sent as JSON.
	Body       any
	HTTPClient *http.Client
}

// StatusError is returned by [Make] for responses other than 200 OK.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("want 200, got %d: %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// Make sends the request described by p and decodes the JSON response into a
// Response.
func Make[Response any](ctx context.Context, p Params) (Response, error) {
	var resp Response

	req, err := newRequest(ctx, p)
	if err != nil {
		return resp, err
	}

	httpc := p.HTTPClient
	if httpc == nil {
		httpc = DefaultClient
	}
	res, err := httpc.Do(req)
	if err != nil {
		return resp, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseSize))
	if err != nil {
		return resp, fmt.Errorf("%s %s: reading response: %w", p.Method, req.URL.Redacted(), err)
	}
	if res.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("%s %s: %w", p.Method, req.URL.Redacted(), &StatusError{StatusCode: res.StatusCode, Body: b})
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, fmt.Errorf("%s %s: decoding response: %w", p.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

func newRequest(ctx context.Context, p Params) (*http.Request, error) {
	var body io.Reader
	if p.Body != nil {
		b, err := json.Marshal(p.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return nil, err
	}
	if len(p.Query) > 0 {
		q := req.URL.Query()
		for k, v := range p.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
