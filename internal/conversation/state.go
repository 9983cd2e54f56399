// Package conversation implements the per-conversation session state and the
// turn arbitration engine: condition-lock resolution, drug accumulation,
// intent stickiness, and single/comparison mode selection.
package conversation

import (
	"time"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/evidence"
)

// chatHistorySize bounds the general-intent chat history: the most recent
// N exchanges are kept, older ones are evicted FIFO.
const chatHistorySize = 10

// ChatEntry is one user/assistant exchange on the general-intent chat path.
type ChatEntry struct {
	User      string
	Assistant string
}

// State is the in-memory session state for one conversation.
//
// It is not safe for concurrent use: callers must hold the session store's
// per-conversation lock for the full read-modify-write of a turn.
type State struct {
	// ActiveConditions is the condition lock: empty until the first
	// non-general turn resolves a condition, then only ever widened
	// (union), never replaced by a disjoint set. Terms are lower-cased.
	ActiveConditions []string

	// DrugsSeen accumulates every normalized drug named in the
	// conversation, in first-seen order. It never shrinks.
	DrugsSeen []string

	// LastIntent is the most recently resolved non-general intent, or
	// GENERAL when none has been resolved yet.
	LastIntent domain.Intent

	// Mode is kept consistent with len(DrugsSeen) after every turn.
	Mode domain.Mode

	// Evidence memoizes fetched bundles for the conversation's lifetime.
	Evidence *evidence.Cache

	// ChatHistory backs the general-intent chat path only.
	ChatHistory []ChatEntry

	UpdatedAt time.Time
}

// newState is the single source of truth for default field values.
func newState() *State {
	return &State{
		LastIntent: domain.IntentGeneral,
		Mode:       domain.ModeSingle,
		Evidence:   evidence.NewCache(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// HasConditionLock reports whether a condition lock has been established.
func (s *State) HasConditionLock() bool {
	return len(s.ActiveConditions) > 0
}

// AddChatEntry appends a general-intent exchange, evicting the oldest entry
// once the bounded history is full.
func (s *State) AddChatEntry(user, assistant string) {
	s.ChatHistory = append(s.ChatHistory, ChatEntry{User: user, Assistant: assistant})
	if len(s.ChatHistory) > chatHistorySize {
		s.ChatHistory = s.ChatHistory[len(s.ChatHistory)-chatHistorySize:]
	}
}

// Seed rehydrates arbitration state from the most recent persisted turn.
// The evidence cache stays empty; evidence is never persisted, only
// re-derivable by re-fetch.
func (s *State) Seed(conditions, drugs []string, intent domain.Intent) {
	s.ActiveConditions = append([]string(nil), conditions...)
	s.DrugsSeen = append([]string(nil), drugs...)
	if !intent.IsGeneral() {
		s.LastIntent = intent
	}
	s.Mode = domain.DeriveMode(len(s.DrugsSeen))
}
