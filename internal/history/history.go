// Package history defines the durable record of completed turns. Every
// answered turn is appended here so a conversation can be listed, replayed,
// and rehydrated after the in-memory session has been evicted or the process
// restarted.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/visualization"
)

// ErrNotFound is returned by Replay when the conversation has no turns
// recorded for the given user.
var ErrNotFound = errors.New("conversation not found")

// Turn is one persisted question/answer exchange.
type Turn struct {
	ConversationID string
	UserID         string
	Question       string
	Answer         string

	// Conditions and Drugs snapshot the arbitration state after the turn,
	// not just the entities named in it. Latest therefore carries enough
	// to rebuild session state on its own.
	Conditions []string
	Drugs      []string
	Intent     domain.Intent
	Mode       domain.Mode

	// TurnType is "conversation" for general chat turns and "analysis"
	// for evidence-backed ones.
	TurnType string

	// Visualization is nil unless the turn produced chartable data.
	Visualization *visualization.Payload

	CreatedAt time.Time
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ConversationID string
	LastQuestion   string
	TurnCount      int
	UpdatedAt      time.Time
}

// TurnStore persists turns. Append failures must not block answer delivery:
// callers log and continue.
type TurnStore interface {
	// Append records a completed turn. CreatedAt is set by the store when
	// the caller leaves it zero.
	Append(ctx context.Context, turn Turn) error

	// ListConversations returns the caller's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)

	// Replay returns the conversation's turns in chronological order.
	// Returns ErrNotFound when no turns exist for this user and id.
	Replay(ctx context.Context, conversationID, userID string) ([]Turn, error)

	// Latest returns the most recent turn of the conversation regardless
	// of user, or (nil, nil) when the conversation has no turns. Used to
	// rehydrate session state after eviction.
	Latest(ctx context.Context, conversationID string) (*Turn, error)
}
