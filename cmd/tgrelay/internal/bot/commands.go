// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"strings"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/delivery/telegram"
	"go.astrophena.name/tgrelay/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	textOnlyReply   = "I can only read text messages for now."
	saveFailedReply = "Sorry, I couldn't save that. Please try again later."
	resetReply      = "Conversation history cleared. Your settings are kept."
	clearedReply    = "Everything is cleared: our conversation and your settings. Let's start fresh!"
	helpReply       = `I'm an AI assistant. Just send me a message.

I can summarize YouTube videos (send a link), make quizzes and more.

Commands:
/start - say hello
/reset - forget our conversation, keep settings
/settings - personalize how I talk to you
/help - show this message`
)

func (b *Bot) handleCommand(ctx context.Context, sess *session.Session, msg *tgbotapi.Message, target delivery.Target) {
	switch msg.Command() {
	case "start":
		b.ask(ctx, sess, target, sess.DisplayName()+" has started the chat.")
	case "reset":
		if err := b.sessions.Clear(ctx, sess.UserID, false); err != nil {
			b.logger.Error("clearing session failed", "user_id", sess.UserID, "err", err)
		}
		b.send(ctx, target, delivery.Text{Text: resetReply})
	case "settings", "setting":
		b.send(ctx, target, mainMenu.payload())
	default:
		b.send(ctx, target, delivery.Text{Text: helpReply})
	}
}

// menu is a settings screen.
type menu struct {
	text string
	rows [][]delivery.Button
}

func (m menu) payload() delivery.Buttons {
	return delivery.Buttons{Text: m.text, Rows: m.rows}
}

func btn(text, data string) []delivery.Button {
	return []delivery.Button{{Text: text, CallbackData: data}}
}

// Callback data of settings buttons.
const (
	cbMain            = "settings_main"
	cbPersonalisation = "settings_personalisation"
	cbSetPrefix       = "set_"
	cbClearPrompt     = "clear_prompt"
	cbClearConfirm    = "clear_confirm"
	cbClose           = "close_settings"
)

var (
	mainMenu = menu{
		text: "⚙️ Settings\nCustomize how I talk to you.",
		rows: [][]delivery.Button{
			btn("👤 Personalisation", cbPersonalisation),
			btn("🧠 Memory", cbSetPrefix+session.ProfileMemory),
			btn("🧹 Clear history & settings", cbClearPrompt),
			btn("⬅️ Close", cbClose),
		},
	}
	personalisationMenu = menu{
		text: "👤 Personalisation\nTell me about yourself so I can answer better.",
		rows: [][]delivery.Button{
			btn("👋 Nickname", cbSetPrefix+session.ProfileNickname),
			btn("📝 Custom instruction", cbSetPrefix+session.ProfileInstruction),
			btn("🎨 Hobby", cbSetPrefix+session.ProfileHobby),
			btn("⬅️ Back", cbMain),
		},
	}
	clearMenu = menu{
		text: "⚠️ Are you sure?\nThis deletes our whole conversation and all your settings.",
		rows: [][]delivery.Button{
			btn("✅ Yes, delete everything", cbClearConfirm),
			btn("❌ No, cancel", cbMain),
		},
	}
)

var (
	profilePrompts = map[string]string{
		session.ProfileNickname:    "Okay! What should I call you?",
		session.ProfileInstruction: `Got it. What instruction should I always follow? (e.g. "Always reply in short points")`,
		session.ProfileHobby:       "Interesting! What's your hobby?",
		session.ProfileMemory:      "Okay, what should I always remember about you?",
	}
	profileLabels = map[string]string{
		session.ProfileNickname:    "nickname",
		session.ProfileInstruction: "custom instruction",
		session.ProfileHobby:       "hobby",
		session.ProfileMemory:      "memory",
	}
)

func savedReply(key string) string {
	label, ok := profileLabels[key]
	if !ok {
		label = key
	}
	return "Saved your " + label + ". ✅"
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	b.answerCallback(q.ID)

	var (
		chatID    int64
		messageID int
	)
	if q.Message != nil && q.Message.Chat != nil {
		chatID, messageID = q.Message.Chat.ID, q.Message.MessageID
	} else {
		// Callbacks on inline messages have no chat; reply privately.
		chatID = q.From.ID
	}
	target := delivery.Target{ChatID: chatID}

	sess := b.sessions.GetOrCreate(ctx, q.From.ID, displayName(q.From))
	sess.Lock()
	defer sess.Unlock()

	data := q.Data
	switch {
	case data == cbMain:
		b.editMenu(chatID, messageID, mainMenu)
	case data == cbPersonalisation:
		b.editMenu(chatID, messageID, personalisationMenu)
	case data == cbClearPrompt:
		b.editMenu(chatID, messageID, clearMenu)
	case data == cbClearConfirm:
		if err := b.sessions.Clear(ctx, q.From.ID, true); err != nil {
			b.logger.Error("clearing session failed", "user_id", q.From.ID, "err", err)
			b.editText(chatID, messageID, saveFailedReply)
			return
		}
		b.editText(chatID, messageID, clearedReply)
	case data == cbClose:
		b.request(tgbotapi.NewDeleteMessage(chatID, messageID))
	case strings.HasPrefix(data, cbSetPrefix) && profilePrompts[strings.TrimPrefix(data, cbSetPrefix)] != "":
		key := strings.TrimPrefix(data, cbSetPrefix)
		sess.SetPending(key)
		b.editText(chatID, messageID, profilePrompts[key])
	default:
		// A button sent by the model: treat the press as the user's reply.
		if strings.TrimSpace(data) == "" {
			return
		}
		b.ask(ctx, sess, target, data)
	}
}

func (b *Bot) answerCallback(id string) {
	b.request(tgbotapi.NewCallback(id, ""))
}

func (b *Bot) editMenu(chatID int64, messageID int, m menu) {
	b.request(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, m.text, telegram.Keyboard(m.rows)))
}

func (b *Bot) editText(chatID int64, messageID int, text string) {
	b.request(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

func (b *Bot) request(c tgbotapi.Chattable) {
	if b.api == nil {
		return
	}
	if _, err := b.api.Request(c); err != nil {
		b.logger.Error("telegram request failed", "err", err)
	}
}
