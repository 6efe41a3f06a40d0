// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package transcript implements the fetch_transcript tool that retrieves
// YouTube video details and transcripts from an external HTTP API.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.astrophena.name/tgrelay/internal/request"
	"go.astrophena.name/tgrelay/internal/tools"
)

// Name is the tool name.
const Name = "fetch_transcript"

// DefaultTimeout bounds a single transcript request.
const DefaultTimeout = 45 * time.Second

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id looks like a YouTube video ID.
func ValidVideoID(id string) bool { return videoIDRe.MatchString(id) }

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`/embed/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`/shorts/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`/live/([A-Za-z0-9_-]+)`),
}

// ExtractVideoID returns the video ID of the first YouTube URL in s.
func ExtractVideoID(s string) (string, bool) {
	for _, re := range urlPatterns {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			if ValidVideoID(m[1]) {
				return m[1], true
			}
		}
	}
	return "", false
}

// UpstreamHTTPError is returned when the transcript API responds with an
// error status.
type UpstreamHTTPError struct {
	StatusCode int
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("transcript API returned HTTP %d", e.StatusCode)
}

// UpstreamTimeoutError is returned when the transcript API does not respond
// in time.
type UpstreamTimeoutError struct {
	Timeout time.Duration
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("transcript API did not respond within %v", e.Timeout)
}

// Response is the transcript API response.
type Response struct {
	Success            bool   `json:"success"`
	Title              string `json:"title"`
	ChannelTitle       string `json:"channelTitle"`
	ChannelSubscribers any    `json:"channelSubscribers"`
	ViewCount          any    `json:"viewCount"`
	LikeCount          any    `json:"likeCount"`
	Transcript         string `json:"transcript"`
}

// Tool is the fetch_transcript tool.
type Tool struct {
	// BaseURL is the transcript API endpoint. The video ID is passed as the
	// "v" query parameter.
	BaseURL string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Decl implements [tools.Tool].
func (t *Tool) Decl() tools.Decl {
	return tools.Decl{
		Name: Name,
		Description: "Gets the transcript and details (title, channel, subscribers, views, likes) " +
			"of a YouTube video. When the user gives a YouTube URL, extract the 11-character " +
			"video ID from it (for https://youtu.be/lgl16xZeS3o the ID is lgl16xZeS3o) and pass only the ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"videoId": map[string]any{
					"type":        "string",
					"description": "The 11-character YouTube video ID.",
				},
			},
			"required": []string{"videoId"},
		},
	}
}

// Call implements [tools.Tool].
func (t *Tool) Call(ctx context.Context, _ *tools.Env, args map[string]any) tools.Result {
	id := tools.String(args, "videoId")
	if !ValidVideoID(id) {
		return tools.Failure("Error: invalid YouTube video ID %q, it must be exactly 11 characters of letters, digits, '-' or '_'.", id)
	}

	resp, err := t.Fetch(ctx, id)
	if err != nil {
		t.logger().Error("fetching transcript failed", "video_id", id, "err", err)
		return tools.Failure("Sorry, the transcript could not be fetched: %v", err)
	}
	if !resp.Success {
		return tools.Failure("Sorry, the transcript service could not get a transcript for this video.")
	}

	return tools.Result{
		Text: Format(resp),
		Data: map[string]any{
			"title":        resp.Title,
			"channelTitle": resp.ChannelTitle,
		},
	}
}

// Fetch performs exactly one request to the transcript API.
func (t *Tool) Fetch(ctx context.Context, videoID string) (Response, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := request.Make[Response](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        t.BaseURL,
		Query:      map[string]string{"v": videoID},
		HTTPClient: t.httpClient(),
	})
	if err == nil {
		return resp, nil
	}

	var statusErr *request.StatusError
	switch {
	case errors.As(err, &statusErr):
		return resp, &UpstreamHTTPError{StatusCode: statusErr.StatusCode}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return resp, &UpstreamTimeoutError{Timeout: timeout}
	}
	return resp, err
}

func (t *Tool) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	// The per-call context carries the timeout.
	return http.DefaultClient
}

func (t *Tool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Format renders a transcript response for the model.
func Format(r Response) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Video title: %s\n", orNA(r.Title))
	fmt.Fprintf(&sb, "Channel: %s\n", orNA(r.ChannelTitle))
	fmt.Fprintf(&sb, "Subscribers: %s\n", orNA(r.ChannelSubscribers))
	fmt.Fprintf(&sb, "Views: %s\n", orNA(r.ViewCount))
	fmt.Fprintf(&sb, "Likes: %s\n", orNA(r.LikeCount))
	sb.WriteString("---\nTranscript:\n")
	if r.Transcript == "" {
		sb.WriteString("Transcript not available.")
	} else {
		sb.WriteString(r.Transcript)
	}
	return sb.String()
}

func orNA(v any) string {
	switch v := v.(type) {
	case nil:
		return "N/A"
	case string:
		if v == "" {
			return "N/A"
		}
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprint(v)
}
