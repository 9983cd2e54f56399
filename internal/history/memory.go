package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface check.
var _ TurnStore = (*InMemoryTurnStore)(nil)

// InMemoryTurnStore implements TurnStore without persistence. Used when no
// database is configured and in tests. Data is lost on restart.
type InMemoryTurnStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn // conversation id -> ordered turns
}

// NewInMemoryTurnStore creates an empty in-memory turn store.
func NewInMemoryTurnStore() *InMemoryTurnStore {
	return &InMemoryTurnStore{turns: make(map[string][]Turn)}
}

func (s *InMemoryTurnStore) Append(_ context.Context, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	turn.Conditions = append([]string(nil), turn.Conditions...)
	turn.Drugs = append([]string(nil), turn.Drugs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], turn)
	return nil
}

func (s *InMemoryTurnStore) ListConversations(_ context.Context, userID string) ([]ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ConversationSummary
	for id, turns := range s.turns {
		var last *Turn
		count := 0
		for i := range turns {
			if turns[i].UserID != userID {
				continue
			}
			count++
			last = &turns[i]
		}
		if last == nil {
			continue
		}
		out = append(out, ConversationSummary{
			ConversationID: id,
			LastQuestion:   last.Question,
			TurnCount:      count,
			UpdatedAt:      last.CreatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *InMemoryTurnStore) Replay(_ context.Context, conversationID, userID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Turn
	for _, t := range s.turns[conversationID] {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *InMemoryTurnStore) Latest(_ context.Context, conversationID string) (*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[conversationID]
	if len(turns) == 0 {
		return nil, nil
	}
	last := turns[len(turns)-1]
	return &last, nil
}
