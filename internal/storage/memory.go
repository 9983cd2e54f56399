package storage

import (
	"context"

	"github.com/novusai/novus/internal/history"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store without a database. Used when no backend is
// configured and in tests; turns do not survive a restart.
type MemoryStore struct {
	turns *history.InMemoryTurnStore
}

// NewMemoryStore creates an ephemeral store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: history.NewInMemoryTurnStore()}
}

func (s *MemoryStore) Turns() history.TurnStore { return s.turns }

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Migrate(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Driver() string { return DriverMemory }
