// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram delivers payloads over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.astrophena.name/tgrelay/internal/delivery"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	sendRetryLimit = 5 // N attempts to retry message sending
	maxMessageLen  = 4096

	// Poll limits, in characters.
	maxPollQuestion    = 300
	maxPollOption      = 100
	maxPollExplanation = 200
)

// API is the subset of [tgbotapi.BotAPI] used for delivery.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Deliverer implements [delivery.Deliverer] for Telegram.
type Deliverer struct {
	api    API
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) bool
}

// New returns a Deliverer that sends through api.
func New(api API, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		api:    api,
		logger: logger,
		sleep:  sleep,
	}
}

var _ delivery.Deliverer = (*Deliverer)(nil)

// Deliver implements [delivery.Deliverer].
func (d *Deliverer) Deliver(ctx context.Context, target delivery.Target, p delivery.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	switch p := p.(type) {
	case delivery.Text:
		for _, chunk := range splitMessage(p.Text) {
			if err := d.send(ctx, tgbotapi.NewMessage(target.ChatID, chunk)); err != nil {
				return err
			}
		}
		return nil
	case delivery.Quiz:
		return d.send(ctx, quizConfig(target.ChatID, p))
	case delivery.Buttons:
		chunks := splitMessage(p.Text)
		// Buttons go with the last chunk.
		for i, chunk := range chunks {
			msg := tgbotapi.NewMessage(target.ChatID, chunk)
			if i == len(chunks)-1 {
				msg.ReplyMarkup = Keyboard(p.Rows)
			}
			if err := d.send(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("telegram: unsupported payload %T", p)
}

func quizConfig(chatID int64, q delivery.Quiz) tgbotapi.SendPollConfig {
	options := make([]string, len(q.Options))
	for i, o := range q.Options {
		options[i] = truncate(o, maxPollOption)
	}
	poll := tgbotapi.NewPoll(chatID, truncate(q.Question, maxPollQuestion), options...)
	poll.Type = "quiz"
	poll.IsAnonymous = false
	poll.CorrectOptionID = int64(q.CorrectOptionIndex)
	poll.Explanation = truncate(q.Explanation, maxPollExplanation)
	return poll
}

// Keyboard converts button rows to a Telegram inline keyboard.
func Keyboard(rows [][]delivery.Button) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
		}
		kbRows = append(kbRows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}

// send sends c, retrying when rate limited.
func (d *Deliverer) send(ctx context.Context, c tgbotapi.Chattable) error {
	var err error
	for range sendRetryLimit {
		if err = ctx.Err(); err != nil {
			return err
		}
		_, err = d.api.Send(c)
		if err == nil {
			return nil
		}

		retryable, wait := isRateLimited(err)
		if !retryable {
			return err
		}

		d.logger.Warn("sending rate limited, waiting", slog.Duration("wait", wait))
		if !d.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return err
}

func isRateLimited(err error) (bool, time.Duration) {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) || tgErr.Code != 429 {
		return false, 0
	}
	return true, time.Duration(tgErr.RetryAfter) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

func splitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= maxMessageLen {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= maxMessageLen {
			chunks = append(chunks, text)
			break
		}

		var (
			lastNewline    = -1
			lastWhitespace = -1
			byteCap        = len(text)
			runeCount      int
		)

		for i, r := range text {
			if runeCount == maxMessageLen {
				byteCap = i
				break
			}
			runeCount++

			if r == '\n' {
				lastNewline = i
				continue
			}
			if unicode.IsSpace(r) {
				lastWhitespace = i
			}
		}

		splitAt := byteCap
		switch {
		case lastNewline > 0:
			splitAt = lastNewline
		case lastWhitespace > 0:
			splitAt = lastWhitespace
		}

		if chunk := strings.TrimSpace(text[:splitAt]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[splitAt:])
	}

	return chunks
}
