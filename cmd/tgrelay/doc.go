// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Tgrelay is a Telegram bot that relays private chat messages to Gemini.

The model can call tools to fetch YouTube transcripts, make quizzes and send
quiz polls or inline buttons to the user. Each user has a short conversation
history kept in memory and a small profile (nickname, custom instruction,
hobby and a note to remember) that can be persisted.

# Usage

	$ tgrelay [-config file]

# Configuration

Settings are read from the optional configuration file and then from
environment variables, which take precedence:

  - TG_TOKEN: Telegram Bot API token. Required.
  - GEMINI_KEY: Gemini API key. Required.
  - TRANSCRIPT_API_URL: transcript service endpoint. The video ID is passed in
    the "v" query parameter. Required.
  - GEMINI_MODEL: model name. Defaults to "gemini-1.5-flash".
  - HISTORY_LIMIT: turns kept per user. Defaults to 20.
  - MAX_TOOL_ROUNDS: tool calls allowed per message. Defaults to 4.
  - TRANSCRIPT_TIMEOUT: transcript request timeout. Defaults to 45s.
  - LLM_TIMEOUT: model call timeout. Defaults to 60s.
  - LLM_RATE: model calls per second. Defaults to 5.
  - WORKERS: updates processed concurrently. Defaults to 16.
  - PROFILE_STORE: where profiles are kept: "mem:", "file:path.json",
    "sqlite:path.db" or a "postgres://" URL. Defaults to "mem:".
  - PROFILE_TTL: how long a profile nobody used is kept, for example
    "720h". Zero, the default, keeps profiles forever.
  - SANDBOX: if "true", restrict filesystem access with Landlock on Linux
    once the bot has started. Only system configuration, the temporary
    directory and the directory of a file or SQLite profile store stay
    accessible.
  - SYSTEM_PROMPT: base system instruction.
  - LOG_LEVEL: one of debug, info, warn or error. Defaults to info.

# Commands

  - /start greets the user.
  - /reset forgets the conversation history.
  - /settings opens the personalisation menu.
*/
package main
