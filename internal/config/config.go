// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads tgrelay configuration from defaults, an optional
// config file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissing is returned when a required setting is absent.
var ErrMissing = errors.New("required setting is missing")

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a friendly and helpful assistant in a Telegram chat. " +
	"Answer concisely. Use the available tools when they help answer the user."

// Config is the tgrelay configuration.
type Config struct {
	TelegramToken     string        `mapstructure:"tg_token"`
	GeminiKey         string        `mapstructure:"gemini_key"`
	TranscriptAPIURL  string        `mapstructure:"transcript_api_url"`
	GeminiModel       string        `mapstructure:"gemini_model"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	MaxToolRounds     int           `mapstructure:"max_tool_rounds"`
	TranscriptTimeout time.Duration `mapstructure:"transcript_timeout"`
	LLMTimeout        time.Duration `mapstructure:"llm_timeout"`
	LLMRate           float64       `mapstructure:"llm_rate"`
	Workers           int           `mapstructure:"workers"`
	ProfileStore      string        `mapstructure:"profile_store"`
	ProfileTTL        time.Duration `mapstructure:"profile_ttl"`
	Sandbox           bool          `mapstructure:"sandbox"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
	LogLevel          string        `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"gemini_model":       "gemini-1.5-flash",
	"history_limit":      20,
	"max_tool_rounds":    4,
	"transcript_timeout": 45 * time.Second,
	"llm_timeout":        60 * time.Second,
	"llm_rate":           5.0,
	"workers":            16,
	"profile_store":      "mem:",
	"profile_ttl":        time.Duration(0),
	"sandbox":            false,
	"system_prompt":      DefaultSystemPrompt,
	"log_level":          "info",
}

var required = []string{"tg_token", "gemini_key", "transcript_api_url"}

// Keys returns every recognized setting name. The environment variable for a
// setting is its name in upper case.
func Keys() []string {
	keys := append([]string(nil), required...)
	for k := range defaults {
		keys = append(keys, k)
	}
	return keys
}

// Load reads the configuration. If configFile is not empty, it is read first
// (any format viper understands); values returned by getenv override it.
func Load(getenv func(string) string, configFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Environment is read through getenv instead of viper.AutomaticEnv so
	// that tests and the CLI environment can substitute it.
	for _, k := range Keys() {
		if val := getenv(strings.ToUpper(k)); val != "" {
			v.Set(k, val)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error
	for _, s := range []struct{ name, val string }{
		{"TG_TOKEN", c.TelegramToken},
		{"GEMINI_KEY", c.GeminiKey},
		{"TRANSCRIPT_API_URL", c.TranscriptAPIURL},
	} {
		if strings.TrimSpace(s.val) == "" {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, ErrMissing))
		}
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit))
	}
	if c.MaxToolRounds <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TOOL_ROUNDS must be positive, got %d", c.MaxToolRounds))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive, got %d", c.Workers))
	}
	if c.LLMRate <= 0 {
		errs = append(errs, fmt.Errorf("LLM_RATE must be positive, got %v", c.LLMRate))
	}
	if c.ProfileTTL < 0 {
		errs = append(errs, fmt.Errorf("PROFILE_TTL must not be negative, got %v", c.ProfileTTL))
	}
	return errors.Join(errs...)
}

// Secrets returns the values that must never appear in logs.
func (c *Config) Secrets() []string {
	return []string{c.TelegramToken, c.GeminiKey}
}
