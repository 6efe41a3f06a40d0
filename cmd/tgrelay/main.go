// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.astrophena.name/tgrelay/cmd/tgrelay/internal/bot"
	"go.astrophena.name/tgrelay/internal/cli"
	"go.astrophena.name/tgrelay/internal/config"
	"go.astrophena.name/tgrelay/internal/delivery/telegram"
	"go.astrophena.name/tgrelay/internal/llm/gemini"
	"go.astrophena.name/tgrelay/internal/logger"
	"go.astrophena.name/tgrelay/internal/relay"
	"go.astrophena.name/tgrelay/internal/restrict"
	"go.astrophena.name/tgrelay/internal/session"
	"go.astrophena.name/tgrelay/internal/store"
	"go.astrophena.name/tgrelay/internal/tools"
	"go.astrophena.name/tgrelay/internal/tools/quiz"
	"go.astrophena.name/tgrelay/internal/tools/transcript"
	"go.astrophena.name/tgrelay/internal/tools/uitools"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/landlock-lsm/go-landlock/landlock"
)

//go:embed doc.go
var doc []byte

func main() {
	cli.SetDocComment(doc)
	cli.Main(new(engine))
}

type engine struct {
	configFile string

	// for tests
	httpc         *http.Client
	tgAPIEndpoint string
}

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.configFile, "config", "", "Path to the `file` with configuration (YAML, JSON or TOML). Environment variables take precedence.")
}

func (e *engine) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", cli.ErrInvalidArgs, env.Args)
	}

	cfg, err := config.Load(env.Getenv, e.configFile)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(env.Stderr, level, logger.NewScrubber(cfg.Secrets()...))
	if err := tgbotapi.SetLogger(logger.FromSlog(log.With("component", "tgbotapi"), slog.LevelDebug)); err != nil {
		return err
	}

	profiles, err := store.Open(ctx, cfg.ProfileStore, cfg.ProfileTTL)
	if err != nil {
		return fmt.Errorf("opening profile store: %w", err)
	}
	defer profiles.Close()
	sessions := session.NewStore(cfg.HistoryLimit, profiles, log)

	model, err := gemini.New(ctx, gemini.Config{
		APIKey:     cfg.GeminiKey,
		Model:      cfg.GeminiModel,
		Timeout:    cfg.LLMTimeout,
		Rate:       cfg.LLMRate,
		HTTPClient: e.httpc,
	})
	if err != nil {
		return err
	}
	defer model.Close()

	httpc := e.httpc
	if httpc == nil {
		httpc = &http.Client{}
	}
	endpoint := e.tgAPIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, endpoint, httpc)
	if err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}
	log.Info("authorized", "bot", api.Self.UserName)

	deliverer := telegram.New(api, log)

	registry, err := tools.NewRegistry(
		&transcript.Tool{
			BaseURL:    cfg.TranscriptAPIURL,
			Timeout:    cfg.TranscriptTimeout,
			HTTPClient: e.httpc,
			Logger:     log,
		},
		&quiz.Tool{Generator: model, Logger: log},
		&uitools.QuizPoll{Logger: log},
		&uitools.Buttons{Logger: log},
	)
	if err != nil {
		return err
	}

	b, err := bot.New(bot.Opts{
		API:      api,
		Sessions: sessions,
		Relay: &relay.Relay{
			Model:         model,
			Tools:         registry,
			Deliverer:     deliverer,
			MaxToolRounds: cfg.MaxToolRounds,
			Logger:        log,
		},
		Deliverer:    deliverer,
		SystemPrompt: cfg.SystemPrompt,
		Workers:      cfg.Workers,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	if cfg.Sandbox {
		ro, rw := sandboxDirs(cfg.ProfileStore)
		if err := restrict.Do(
			landlock.RODirs(ro...).IgnoreIfMissing(),
			landlock.RWDirs(rw...).IgnoreIfMissing(),
		); err != nil {
			log.Warn("sandboxing failed", "err", err)
		} else {
			log.Info("sandboxed", "rw", rw)
		}
	}

	log.Info("started", "tools", registry.Names(), "profile_store", storeKind(cfg.ProfileStore))
	return b.Run(ctx)
}

func storeKind(dsn string) string {
	kind, _, _ := strings.Cut(dsn, ":")
	return cmp.Or(kind, "mem")
}

// sandboxDirs returns the directories the bot reads after startup (TLS roots,
// name resolution and time zones) and the ones it writes: the temporary
// directory and the directory of a file-backed profile store.
func sandboxDirs(profileStore string) (ro, rw []string) {
	ro = []string{
		"/etc",
		"/usr/share/ca-certificates",
		"/usr/local/share/ca-certificates",
		"/usr/share/zoneinfo",
	}
	rw = []string{os.TempDir()}
	if path := store.Path(profileStore); path != "" {
		rw = append(rw, filepath.Dir(path))
	}
	return ro, rw
}
