// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package session keeps per-user conversation state: a capped history of
// turns and a personalization profile.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.astrophena.name/tgrelay/internal/store"
)

// Role identifies who produced a turn.
type Role string

// Turn roles.
const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool-call"
	RoleToolResult Role = "tool-result"
)

// Turn is one recorded unit of dialogue.
type Turn struct {
	Role Role
	Text string
	// Tool is the tool name for tool-call and tool-result turns.
	Tool string
	// Args holds the arguments of a tool-call turn.
	Args map[string]any
	// Data holds the structured result of a tool-result turn, if any.
	Data map[string]any
	Time time.Time
}

// Profile keys understood by the bot.
const (
	ProfileNickname    = "nickname"
	ProfileInstruction = "instruction"
	ProfileHobby       = "hobby"
	ProfileMemory      = "memory"
)

// ProfileKeys lists known profile keys in display order.
var ProfileKeys = []string{ProfileNickname, ProfileInstruction, ProfileHobby, ProfileMemory}

// Session is the conversation state of a single user.
//
// Lock and Unlock serialize relay executions for the user. All other methods
// are safe to call concurrently.
type Session struct {
	UserID int64

	run  sync.Mutex
	load sync.Once
	save sync.Mutex

	mu          sync.Mutex
	limit       int
	displayName string
	history     []Turn
	appended    int // total number of turns ever appended
	pinned      bool
	pinFrom     int // index, counted like appended, of the first pinned turn
	profile     map[string]string
	pending     string
}

func newSession(userID int64, displayName string, limit int) *Session {
	return &Session{
		UserID:      userID,
		limit:       limit,
		displayName: displayName,
		profile:     make(map[string]string),
	}
}

// Lock acquires the per-user execution lock.
func (s *Session) Lock() { s.run.Lock() }

// Unlock releases the per-user execution lock.
func (s *Session) Unlock() { s.run.Unlock() }

// DisplayName returns the user's display name.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// Append adds a turn to the history, evicting the oldest turns when the
// history is over the cap. Turns pinned by [Session.Mark] are never evicted.
func (s *Session) Append(t Turn) {
	if t.Time.IsZero() {
		t.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
	s.appended++
	s.trim()
}

// trim must be called with mu held.
func (s *Session) trim() {
	over := len(s.history) - s.limit
	if s.pinned {
		first := s.appended - len(s.history)
		over = min(over, s.pinFrom-first)
	}
	if over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// History returns a copy of the history, oldest turn first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Len returns the number of turns in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Mark returns a position that can be later passed to Rollback. It also pins
// the last appended turn and every turn appended after it: the history may
// grow over the cap until [Session.Rollback] or [Session.Release].
func (s *Session) Mark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = true
	s.pinFrom = max(0, s.appended-1)
	return s.appended
}

// Rollback removes the turns appended after mark that are still in the
// history and releases the pin.
func (s *Session) Rollback(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := min(s.appended-mark, len(s.history)); n > 0 {
		s.history = s.history[:len(s.history)-n]
		s.appended -= n
	}
	s.pinned = false
	s.trim()
}

// Release unpins the turns pinned by Mark and evicts what is over the cap.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = false
	s.trim()
}

// Reset forgets the history and the pending profile key. If forgetProfile
// is true, the in-memory profile is emptied too.
func (s *Session) Reset(forgetProfile bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.pending = ""
	s.pinned = false
	if forgetProfile {
		clear(s.profile)
	}
}

// Profile returns a copy of the user's profile.
func (s *Session) Profile() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.profile)
}

// Pending returns the profile key awaiting a value from the user's next
// message, or an empty string.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SetPending marks key as awaiting a value. An empty key clears it.
func (s *Session) SetPending(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = key
}

// Store holds sessions of all users. It is safe for concurrent use.
type Store struct {
	limit    int
	profiles store.Store
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore returns a Store whose sessions keep at most limit turns. Profiles
// are persisted in profiles.
func NewStore(limit int, profiles store.Store, logger *slog.Logger) *Store {
	if limit <= 0 {
		panic("session: history limit must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		limit:    limit,
		profiles: profiles,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

func profileKey(userID int64) string {
	return "profile/" + strconv.FormatInt(userID, 10)
}

// GetOrCreate returns the session of userID, creating it if needed. Repeated
// calls return the same session. The persisted profile is loaded on first
// access.
func (s *Store) GetOrCreate(ctx context.Context, userID int64, displayName string) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = newSession(userID, displayName, s.limit)
		s.sessions[userID] = sess
	}
	s.mu.Unlock()

	if ok && displayName != "" {
		sess.mu.Lock()
		sess.displayName = displayName
		sess.mu.Unlock()
	}

	sess.load.Do(func() {
		profile, err := s.loadProfile(ctx, userID)
		if err != nil {
			s.logger.Error("loading profile failed", "user_id", userID, "err", err)
			return
		}
		sess.mu.Lock()
		maps.Copy(sess.profile, profile)
		sess.mu.Unlock()
	})

	return sess
}

func (s *Store) loadProfile(ctx context.Context, userID int64) (map[string]string, error) {
	if s.profiles == nil {
		return nil, nil
	}
	b, err := s.profiles.Get(ctx, profileKey(userID))
	if err != nil || b == nil {
		return nil, err
	}
	var profile map[string]string
	if err := json.Unmarshal(b, &profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return profile, nil
}

// Clear empties the history of userID. If forgetProfile is true, the profile
// is deleted too, in memory and in the backing store. The session itself
// stays in place, so handlers already waiting on its lock keep running in
// order. Clearing an unknown user only deletes the persisted profile.
func (s *Store) Clear(ctx context.Context, userID int64, forgetProfile bool) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()

	if !forgetProfile {
		if ok {
			sess.Reset(false)
		}
		return nil
	}

	if ok {
		sess.save.Lock()
		defer sess.save.Unlock()
		sess.Reset(true)
	}
	if s.profiles == nil {
		return nil
	}
	if err := s.profiles.Delete(ctx, profileKey(userID)); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// SetProfile sets a profile value of userID and persists the profile. An
// empty value removes the key.
func (s *Store) SetProfile(ctx context.Context, userID int64, key, value string) error {
	if key == "" {
		return fmt.Errorf("session: empty profile key")
	}
	sess := s.GetOrCreate(ctx, userID, "")

	// save orders concurrent writes of the same profile.
	sess.save.Lock()
	defer sess.save.Unlock()

	sess.mu.Lock()
	prev, had := sess.profile[key]
	setProfileValue(sess.profile, key, value)
	b, err := json.Marshal(sess.profile)
	sess.mu.Unlock()

	if err == nil && s.profiles != nil {
		if err = s.profiles.Set(ctx, profileKey(userID), b); err != nil {
			err = fmt.Errorf("saving profile: %w", err)
		}
	}
	if err != nil {
		// Keep memory in line with what is stored.
		sess.mu.Lock()
		if had {
			sess.profile[key] = prev
		} else {
			delete(sess.profile, key)
		}
		sess.mu.Unlock()
	}
	return err
}

func setProfileValue(profile map[string]string, key, value string) {
	if value == "" {
		delete(profile, key)
		return
	}
	profile[key] = value
}
