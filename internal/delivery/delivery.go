// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package delivery defines how replies reach the chat surface.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Target identifies where a payload is delivered.
type Target struct {
	ChatID int64
}

// Deliverer sends payloads to the chat surface.
type Deliverer interface {
	Deliver(ctx context.Context, target Target, p Payload) error
}

// DelivererFunc is an adapter to allow the use of ordinary functions as
// a [Deliverer].
type DelivererFunc func(ctx context.Context, target Target, p Payload) error

// Deliver calls f(ctx, target, p).
func (f DelivererFunc) Deliver(ctx context.Context, target Target, p Payload) error {
	return f(ctx, target, p)
}

// Payload is one of [Text], [Quiz] or [Buttons].
type Payload interface {
	Validate() error
	payload()
}

// Text is a plain text message.
type Text struct {
	Text string
}

// Quiz is a quiz poll with exactly four options.
type Quiz struct {
	Question           string
	Options            []string
	CorrectOptionIndex int
	Explanation        string
}

// QuizOptions is the number of options in a [Quiz].
const QuizOptions = 4

// Buttons is a message with rows of inline buttons.
type Buttons struct {
	Text string
	Rows [][]Button
}

// Button is an inline button.
type Button struct {
	Text         string
	CallbackData string
}

func (Text) payload()    {}
func (Quiz) payload()    {}
func (Buttons) payload() {}

// Validate implements [Payload].
func (t Text) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return errors.New("empty text")
	}
	return nil
}

// Validate implements [Payload].
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return errors.New("quiz: empty question")
	}
	if len(q.Options) != QuizOptions {
		return fmt.Errorf("quiz: want %d options, got %d", QuizOptions, len(q.Options))
	}
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("quiz: option %d is empty", i)
		}
	}
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= QuizOptions {
		return fmt.Errorf("quiz: correct option index %d out of range 0..%d", q.CorrectOptionIndex, QuizOptions-1)
	}
	return nil
}

// maxCallbackData is the Telegram limit for callback data, in bytes.
const maxCallbackData = 64

// Validate implements [Payload].
func (b Buttons) Validate() error {
	if strings.TrimSpace(b.Text) == "" {
		return errors.New("buttons: empty text")
	}
	if len(b.Rows) == 0 {
		return errors.New("buttons: no rows")
	}
	for i, row := range b.Rows {
		if len(row) == 0 {
			return fmt.Errorf("buttons: row %d is empty", i)
		}
		for _, btn := range row {
			if btn.Text == "" {
				return fmt.Errorf("buttons: row %d has a button without text", i)
			}
			if btn.CallbackData == "" || len(btn.CallbackData) > maxCallbackData {
				return fmt.Errorf("buttons: callback data of %q must be 1..%d bytes", btn.Text, maxCallbackData)
			}
		}
	}
	return nil
}
