// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bot implements the Telegram front-end of tgrelay.
//
// It receives updates by long polling, dispatches them on a bounded pool of
// goroutines and routes each one to a command, the settings menu or the
// relay. Messages of the same user are processed one at a time, in order.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"text/template"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/relay"
	"go.astrophena.name/tgrelay/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// API is the subset of [tgbotapi.BotAPI] used by the bot.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Opts is the options for creating a new Bot.
type Opts struct {
	// API is the Telegram Bot API client.
	API API
	// Sessions holds conversation state.
	Sessions *session.Store
	// Relay answers user messages.
	Relay *relay.Relay
	// Deliverer sends replies.
	Deliverer delivery.Deliverer
	// SystemPrompt is the base system instruction.
	SystemPrompt string
	// Workers bounds concurrently processed updates. Defaults to 16.
	Workers int
	// PollTimeout is the long polling timeout in seconds. Defaults to 60.
	PollTimeout int
	// Logger is used for logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Bot is the Telegram front-end.
type Bot struct {
	api          API
	sessions     *session.Store
	relay        *relay.Relay
	deliverer    delivery.Deliverer
	systemPrompt string
	workers      int
	pollTimeout  int
	logger       *slog.Logger
}

// New creates a new Bot.
func New(opts Opts) (*Bot, error) {
	if opts.Sessions == nil || opts.Relay == nil || opts.Deliverer == nil {
		return nil, errors.New("bot: Sessions, Relay and Deliverer are required")
	}
	b := &Bot{
		api:          opts.API,
		sessions:     opts.Sessions,
		relay:        opts.Relay,
		deliverer:    opts.Deliverer,
		systemPrompt: opts.SystemPrompt,
		workers:      opts.Workers,
		pollTimeout:  opts.PollTimeout,
		logger:       opts.Logger,
	}
	if b.workers <= 0 {
		b.workers = 16
	}
	if b.pollTimeout <= 0 {
		b.pollTimeout = 60
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Run receives updates until ctx is canceled, then waits for in-flight
// updates to finish.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot: no Telegram API client")
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(cfg)

	p := pool.New().WithMaxGoroutines(b.workers)
	b.logger.Info("receiving updates", "workers", b.workers)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			p.Go(func() { b.HandleUpdate(ctx, upd) })
		}
	}

	b.api.StopReceivingUpdates()
	p.Wait()
	return nil
}

// HandleUpdate processes a single update. Panics are recovered and logged.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var pc panics.Catcher
	pc.Try(func() {
		switch {
		case upd.CallbackQuery != nil:
			b.handleCallback(ctx, upd.CallbackQuery)
		case upd.Message != nil:
			b.handleMessage(ctx, upd.Message)
		}
	})
	if r := pc.Recovered(); r != nil {
		b.logger.Error("panic while handling update", "update_id", upd.UpdateID, "panic", r.String())
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = "User"
	}
	return name
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	target := delivery.Target{ChatID: msg.Chat.ID}
	logger := b.logger.With("user_id", userID, "chat_id", msg.Chat.ID)

	sess := b.sessions.GetOrCreate(ctx, userID, displayName(msg.From))
	sess.Lock()
	defer sess.Unlock()

	if msg.IsCommand() {
		sess.SetPending("")
		b.handleCommand(ctx, sess, msg, target)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		b.send(ctx, target, delivery.Text{Text: textOnlyReply})
		return
	}

	if key := sess.Pending(); key != "" {
		sess.SetPending("")
		if err := b.sessions.SetProfile(ctx, userID, key, text); err != nil {
			logger.Error("saving profile failed", "key", key, "err", err)
			b.send(ctx, target, delivery.Text{Text: saveFailedReply})
			return
		}
		b.send(ctx, target, delivery.Text{Text: savedReply(key)})
		return
	}

	b.ask(ctx, sess, target, text)
}

// ask runs text through the relay and delivers the reply. sess must be
// locked.
func (b *Bot) ask(ctx context.Context, sess *session.Session, target delivery.Target, text string) {
	b.typing(target)

	system, err := SystemInstruction(b.systemPrompt, sess.DisplayName(), sess.Profile())
	if err != nil {
		b.logger.Error("rendering system instruction failed", "err", err)
		system = b.systemPrompt
	}

	reply := b.relay.Handle(ctx, sess, relay.Input{
		Text:   text,
		Target: target,
		System: system,
	})
	b.logger.Info("handled message",
		"user_id", sess.UserID,
		"run_id", reply.RunID,
		"outcome", reply.Outcome.String(),
		"tool_rounds", reply.ToolRounds,
	)
	b.send(ctx, target, delivery.Text{Text: reply.Text})
}

// send delivers p, logging failures.
func (b *Bot) send(ctx context.Context, target delivery.Target, p delivery.Payload) {
	if err := b.deliverer.Deliver(ctx, target, p); err != nil {
		b.logger.Error("delivery failed", "chat_id", target.ChatID, "err", err)
	}
}

func (b *Bot) typing(target delivery.Target) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewChatAction(target.ChatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("sending chat action failed", "err", err)
	}
}

var systemTmpl = template.Must(template.New("system").Parse(`{{.Base}}

The user's name is {{.Name}}.
{{- with .Profile}}

The user has shared these preferences; follow them:
{{- with .nickname}}
- Address the user as {{.}}.
{{- end}}
{{- with .instruction}}
- Custom instruction: {{.}}
{{- end}}
{{- with .hobby}}
- The user's hobby: {{.}}
{{- end}}
{{- with .memory}}
- Remember: {{.}}
{{- end}}
{{- end}}`))

// SystemInstruction renders the system instruction for a user.
func SystemInstruction(base, name string, profile map[string]string) (string, error) {
	if len(profile) == 0 {
		profile = nil
	}
	var sb strings.Builder
	err := systemTmpl.Execute(&sb, struct {
		Base    string
		Name    string
		Profile map[string]string
	}{base, name, profile})
	return strings.TrimSpace(sb.String()), err
}
