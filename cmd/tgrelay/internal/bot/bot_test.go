// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/llm"
	"go.astrophena.name/tgrelay/internal/llm/llmtest"
	"go.astrophena.name/tgrelay/internal/relay"
	"go.astrophena.name/tgrelay/internal/session"
	"go.astrophena.name/tgrelay/internal/store"
	"go.astrophena.name/tgrelay/internal/testutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	updates chan tgbotapi.Update

	mu       sync.Mutex
	requests []tgbotapi.Chattable
	stopped  bool
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) requestsOf(kind func(tgbotapi.Chattable) bool) []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.Chattable
	for _, r := range f.requests {
		if kind(r) {
			out = append(out, r)
		}
	}
	return out
}

type sent struct {
	Target  delivery.Target
	Payload delivery.Payload
}

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []sent
}

func (d *fakeDeliverer) Deliver(_ context.Context, target delivery.Target, p delivery.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{target, p})
	return nil
}

func (d *fakeDeliverer) texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, s := range d.sent {
		if t, ok := s.Payload.(delivery.Text); ok {
			out = append(out, t.Text)
		}
	}
	return out
}

type env struct {
	bot      *Bot
	api      *fakeAPI
	out      *fakeDeliverer
	sessions *session.Store
}

func newEnv(t *testing.T, model llm.Model) *env {
	t.Helper()
	e := &env{
		api:      &fakeAPI{updates: make(chan tgbotapi.Update)},
		out:      &fakeDeliverer{},
		sessions: session.NewStore(20, store.NewMemStore(t.Context(), 0), nil),
	}
	b, err := New(Opts{
		API:          e.api,
		Sessions:     e.sessions,
		Relay:        &relay.Relay{Model: model, Deliverer: e.out},
		Deliverer:    e.out,
		SystemPrompt: "You are a test bot.",
		Workers:      4,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.bot = b
	return e
}

func message(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ann", LastName: "Lee"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: userID, FirstName: "Ann"},
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: userID},
		},
		Data: data,
	}}
}

func TestMessageIsRelayed(t *testing.T) {
	t.Parallel()

	model := llmtest.New(llmtest.Text("Hi Ann!"))
	e := newEnv(t, model)

	e.bot.HandleUpdate(t.Context(), message(1, "hello"))

	testutil.AssertEqual(t, e.out.texts(), []string{"Hi Ann!"})
	req := model.Requests()[0]
	if !strings.HasPrefix(req.System, "You are a test bot.") || !strings.Contains(req.System, "Ann Lee") {
		t.Fatalf("unexpected system instruction: %q", req.System)
	}
	typing := e.api.requestsOf(func(c tgbotapi.Chattable) bool {
		_, ok := c.(tgbotapi.ChatActionConfig)
		return ok
	})
	testutil.AssertEqual(t, len(typing), 1)
}

func TestStartCommand(t *testing.T) {
	t.Parallel()

	model := llmtest.New(llmtest.Text("Welcome!"))
	e := newEnv(t, model)

	e.bot.HandleUpdate(t.Context(), message(1, "/start"))

	testutil.AssertEqual(t, e.out.texts(), []string{"Welcome!"})
	h := model.Requests()[0].History
	testutil.AssertEqual(t, h[len(h)-1].Text, "Ann Lee has started the chat.")
}

func TestResetCommand(t *testing.T) {
	t.Parallel()

	e := newEnv(t, llmtest.Always(llmtest.Text("ok")))
	ctx := t.Context()

	e.bot.HandleUpdate(ctx, message(1, "hello"))
	if err := e.sessions.SetProfile(ctx, 1, session.ProfileNickname, "Annie"); err != nil {
		t.Fatal(err)
	}
	e.bot.HandleUpdate(ctx, message(1, "/reset"))

	sess := e.sessions.GetOrCreate(ctx, 1, "")
	testutil.AssertEqual(t, sess.Len(), 0)
	testutil.AssertEqual(t, sess.Profile(), map[string]string{session.ProfileNickname: "Annie"})
	testutil.AssertEqual(t, e.out.texts()[1], resetReply)
}

func TestHelpAndUnknownCommands(t *testing.T) {
	t.Parallel()

	model := llmtest.New()
	e := newEnv(t, model)

	e.bot.HandleUpdate(t.Context(), message(1, "/help"))
	e.bot.HandleUpdate(t.Context(), message(1, "/whatever"))

	testutil.AssertEqual(t, e.out.texts(), []string{helpReply, helpReply})
	testutil.AssertEqual(t, model.Calls(), 0)
}

func TestSettingsFlow(t *testing.T) {
	t.Parallel()

	model := llmtest.Always(llmtest.Text("ok"))
	e := newEnv(t, model)
	ctx := t.Context()

	e.bot.HandleUpdate(ctx, message(1, "/settings"))
	e.out.mu.Lock()
	menu, ok := e.out.sent[0].Payload.(delivery.Buttons)
	e.out.mu.Unlock()
	if !ok {
		t.Fatal("settings did not send a button menu")
	}
	testutil.AssertEqual(t, menu.Rows[0][0].CallbackData, cbPersonalisation)

	// Navigate and pick the nickname.
	e.bot.HandleUpdate(ctx, callback(1, cbPersonalisation))
	e.bot.HandleUpdate(ctx, callback(1, "set_nickname"))
	testutil.AssertEqual(t, e.sessions.GetOrCreate(ctx, 1, "").Pending(), session.ProfileNickname)

	// The next message is the value, not a question for the model.
	e.bot.HandleUpdate(ctx, message(1, "Annie"))
	testutil.AssertEqual(t, model.Calls(), 0)
	testutil.AssertEqual(t, e.out.texts(), []string{savedReply(session.ProfileNickname)})
	testutil.AssertEqual(t, e.sessions.GetOrCreate(ctx, 1, "").Profile(), map[string]string{session.ProfileNickname: "Annie"})

	// The profile reaches the model.
	e.bot.HandleUpdate(ctx, message(1, "hi"))
	if sys := model.Requests()[0].System; !strings.Contains(sys, "Address the user as Annie.") {
		t.Fatalf("profile missing from system instruction: %q", sys)
	}

	edits := e.api.requestsOf(func(c tgbotapi.Chattable) bool {
		_, ok := c.(tgbotapi.EditMessageTextConfig)
		return ok
	})
	testutil.AssertEqual(t, len(edits), 2)
}

func TestClearConfirm(t *testing.T) {
	t.Parallel()

	e := newEnv(t, llmtest.Always(llmtest.Text("ok")))
	ctx := t.Context()

	e.bot.HandleUpdate(ctx, message(1, "hello"))
	if err := e.sessions.SetProfile(ctx, 1, session.ProfileHobby, "chess"); err != nil {
		t.Fatal(err)
	}
	e.bot.HandleUpdate(ctx, callback(1, cbClearPrompt))
	e.bot.HandleUpdate(ctx, callback(1, cbClearConfirm))

	sess := e.sessions.GetOrCreate(ctx, 1, "")
	testutil.AssertEqual(t, sess.Len(), 0)
	testutil.AssertEqual(t, sess.Profile(), map[string]string{})
}

func TestCloseSettings(t *testing.T) {
	t.Parallel()

	e := newEnv(t, llmtest.New())
	e.bot.HandleUpdate(t.Context(), callback(1, cbClose))

	deletes := e.api.requestsOf(func(c tgbotapi.Chattable) bool {
		_, ok := c.(tgbotapi.DeleteMessageConfig)
		return ok
	})
	testutil.AssertEqual(t, len(deletes), 1)
	answers := e.api.requestsOf(func(c tgbotapi.Chattable) bool {
		_, ok := c.(tgbotapi.CallbackConfig)
		return ok
	})
	testutil.AssertEqual(t, len(answers), 1)
}

func TestModelButtonPressIsRelayed(t *testing.T) {
	t.Parallel()

	model := llmtest.New(llmtest.Text("You picked B."))
	e := newEnv(t, model)

	e.bot.HandleUpdate(t.Context(), callback(1, "answer_b"))

	testutil.AssertEqual(t, e.out.texts(), []string{"You picked B."})
	h := model.Requests()[0].History
	testutil.AssertEqual(t, h[len(h)-1].Text, "answer_b")
}

func TestNonTextMessage(t *testing.T) {
	t.Parallel()

	model := llmtest.New()
	e := newEnv(t, model)

	e.bot.HandleUpdate(t.Context(), message(1, ""))
	testutil.AssertEqual(t, e.out.texts(), []string{textOnlyReply})
	testutil.AssertEqual(t, model.Calls(), 0)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	model := llmtest.Func(func(context.Context, *llm.Request) (*llm.Response, error) {
		panic("model exploded")
	})
	e := newEnv(t, model)

	// Must not panic.
	e.bot.HandleUpdate(t.Context(), message(1, "hello"))

	// The session lock was released.
	done := make(chan struct{})
	go func() {
		sess := e.sessions.GetOrCreate(context.Background(), 1, "")
		sess.Lock()
		sess.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session lock was not released after panic")
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	model := llmtest.Always(llmtest.Text("pong"))
	e := newEnv(t, model)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- e.bot.Run(ctx) }()

	for i := range 3 {
		e.api.updates <- message(int64(i+1), "ping")
	}
	close(e.api.updates)

	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	cancel()

	testutil.AssertEqual(t, e.out.texts(), []string{"pong", "pong", "pong"})
	e.api.mu.Lock()
	testutil.AssertEqual(t, e.api.stopped, true)
	e.api.mu.Unlock()
}

func TestRunWithoutAPI(t *testing.T) {
	t.Parallel()

	b, err := New(Opts{
		Sessions:  session.NewStore(1, nil, nil),
		Relay:     &relay.Relay{},
		Deliverer: &fakeDeliverer{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Run(t.Context()); err == nil {
		t.Fatal("want error without API client")
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	if _, err := New(Opts{}); err == nil {
		t.Fatal("want error for empty options")
	}
}

func TestSystemInstruction(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		profile map[string]string
		want    string
	}{
		"no profile": {
			want: "Base.\n\nThe user's name is Ann.",
		},
		"full profile": {
			profile: map[string]string{
				session.ProfileNickname:    "Annie",
				session.ProfileInstruction: "Be brief",
				session.ProfileHobby:       "chess",
				session.ProfileMemory:      "has a cat",
			},
			want: "Base.\n\nThe user's name is Ann.\n\nThe user has shared these preferences; follow them:\n" +
				"- Address the user as Annie.\n- Custom instruction: Be brief\n- The user's hobby: chess\n- Remember: has a cat",
		},
		"partial profile": {
			profile: map[string]string{session.ProfileHobby: "go"},
			want:    "Base.\n\nThe user's name is Ann.\n\nThe user has shared these preferences; follow them:\n- The user's hobby: go",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := SystemInstruction("Base.", "Ann", tc.profile)
			if err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}
