// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.astrophena.name/tgrelay/internal/delivery"
	"go.astrophena.name/tgrelay/internal/testutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	sent []tgbotapi.Chattable
	errs []error // returned in order, then nil
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func newTestDeliverer(api API) (*Deliverer, *[]time.Duration) {
	d := New(api, nil)
	var waits []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) bool {
		waits = append(waits, dur)
		return true
	}
	return d, &waits
}

var target = delivery.Target{ChatID: 42}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want []string
	}{
		"empty":             {in: "  ", want: nil},
		"short":             {in: "hello", want: []string{"hello"}},
		"exact":             {in: strings.Repeat("a", 4096), want: []string{strings.Repeat("a", 4096)}},
		"long (no newline)": {in: strings.Repeat("a", 4100), want: []string{strings.Repeat("a", 4096), "aaaa"}},
		"long (single line with spaces)": {
			in:   strings.Repeat("a", 3000) + " " + strings.Repeat("b", 1500),
			want: []string{strings.Repeat("a", 3000), strings.Repeat("b", 1500)},
		},
		"long (newline split)": {
			in:   strings.Repeat("a", 4000) + "\n" + strings.Repeat("b", 100),
			want: []string{strings.Repeat("a", 4000), strings.Repeat("b", 100)},
		},
		"multi-byte unicode": {
			in:   strings.Repeat("🙂", 4095) + "\n" + "🙂",
			want: []string{strings.Repeat("🙂", 4095), "🙂"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, splitMessage(tc.in), tc.want)
		})
	}
}

func TestDeliverText(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, _ := newTestDeliverer(api)

	long := strings.Repeat("word ", 1000)
	if err := d.Deliver(t.Context(), target, delivery.Text{Text: long}); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(api.sent), 2)
	for _, c := range api.sent {
		msg := c.(tgbotapi.MessageConfig)
		testutil.AssertEqual(t, msg.ChatID, int64(42))
		if n := utf8.RuneCountInString(msg.Text); n > 4096 {
			t.Fatalf("message too long: %d runes", n)
		}
	}
}

func TestDeliverQuiz(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, _ := newTestDeliverer(api)

	err := d.Deliver(t.Context(), target, delivery.Quiz{
		Question:           "2+2?",
		Options:            []string{"3", "4", "5", strings.Repeat("x", 150)},
		CorrectOptionIndex: 1,
		Explanation:        "Arithmetic.",
	})
	if err != nil {
		t.Fatal(err)
	}

	poll := api.sent[0].(tgbotapi.SendPollConfig)
	testutil.AssertEqual(t, poll.Type, "quiz")
	testutil.AssertEqual(t, poll.IsAnonymous, false)
	testutil.AssertEqual(t, poll.CorrectOptionID, int64(1))
	testutil.AssertEqual(t, poll.Question, "2+2?")
	testutil.AssertEqual(t, poll.Explanation, "Arithmetic.")
	testutil.AssertEqual(t, utf8.RuneCountInString(poll.Options[3]), 100)
}

func TestDeliverButtons(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, _ := newTestDeliverer(api)

	err := d.Deliver(t.Context(), target, delivery.Buttons{
		Text: "Pick",
		Rows: [][]delivery.Button{
			{{Text: "A", CallbackData: "a"}, {Text: "B", CallbackData: "b"}},
			{{Text: "C", CallbackData: "c"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	msg := api.sent[0].(tgbotapi.MessageConfig)
	testutil.AssertEqual(t, msg.Text, "Pick")
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	testutil.AssertEqual(t, len(kb.InlineKeyboard), 2)
	testutil.AssertEqual(t, len(kb.InlineKeyboard[0]), 2)
	testutil.AssertEqual(t, *kb.InlineKeyboard[1][0].CallbackData, "c")
}

func TestDeliverInvalidPayload(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d, _ := newTestDeliverer(api)
	if err := d.Deliver(t.Context(), target, delivery.Quiz{Question: "q"}); err == nil {
		t.Fatal("want error for invalid quiz")
	}
	testutil.AssertEqual(t, len(api.sent), 0)
}

func TestRateLimitRetry(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{errs: []error{
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}},
	}}
	d, waits := newTestDeliverer(api)

	if err := d.Deliver(t.Context(), target, delivery.Text{Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(api.sent), 2)
	testutil.AssertEqual(t, *waits, []time.Duration{3 * time.Second})
}

func TestRateLimitGivesUp(t *testing.T) {
	t.Parallel()

	limited := &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}}
	api := &fakeAPI{errs: []error{limited, limited, limited, limited, limited, limited}}
	d, waits := newTestDeliverer(api)

	err := d.Deliver(t.Context(), target, delivery.Text{Text: "hello"})
	if !errors.Is(err, limited) {
		t.Fatalf("want rate limit error, got %v", err)
	}
	testutil.AssertEqual(t, len(api.sent), sendRetryLimit)
	testutil.AssertEqual(t, len(*waits), sendRetryLimit)
}

func TestNonRetryableError(t *testing.T) {
	t.Parallel()

	wantErr := &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	api := &fakeAPI{errs: []error{wantErr}}
	d := New(api, nil)
	d.sleep = func(context.Context, time.Duration) bool {
		t.Fatal("sleep should not be called for non-retryable errors")
		return false
	}

	if err := d.Deliver(t.Context(), target, delivery.Text{Text: "hello"}); !errors.Is(err, wantErr) {
		t.Fatalf("Deliver() error = %v, want %v", err, wantErr)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	testutil.AssertEqual(t, truncate("hello", 10), "hello")
	testutil.AssertEqual(t, truncate("hello world", 5), "hell…")
}
