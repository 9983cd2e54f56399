package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore keeps per-conversation state for the process lifetime.
// States are created on first reference and are never explicitly destroyed;
// an idle sweep may evict them because state rehydrates from durable history.
type SessionStore interface {
	// Get returns the state for id, or (nil, false) when absent.
	Get(id string) (*State, bool)
	// Create allocates a fresh conversation id with default state.
	Create() (string, *State)
	// CreateWithID installs default state under a caller-chosen id,
	// used when rehydrating a conversation that survived a restart.
	CreateWithID(id string) *State
	// Apply runs a partial mutation against the state for id, refreshing
	// UpdatedAt. It is a no-op when the id is unknown.
	Apply(id string, mutate func(*State))

	// Lock acquires the per-conversation mutex for id. Turns on the same
	// conversation serialize their arbitration read-modify-write through
	// it; turns on different conversations proceed in parallel.
	Lock(id string)
	Unlock(id string)
}

// InMemorySessionStore implements SessionStore with a map guarded by a store
// mutex plus a keyed mutex per conversation for turn-level single-flight.
type InMemorySessionStore struct {
	mu     sync.RWMutex
	states map[string]*State
	locks  map[string]*sync.Mutex
	logger *slog.Logger
}

// NewInMemorySessionStore creates an empty session store.
func NewInMemorySessionStore(logger *slog.Logger) *InMemorySessionStore {
	return &InMemorySessionStore{
		states: make(map[string]*State),
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
	}
}

func (s *InMemorySessionStore) Get(id string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

func (s *InMemorySessionStore) Create() (string, *State) {
	id := uuid.New().String()
	return id, s.CreateWithID(id)
}

func (s *InMemorySessionStore) CreateWithID(id string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		return st
	}
	st := newState()
	s.states[id] = st
	return st
}

func (s *InMemorySessionStore) Apply(id string, mutate func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return
	}
	mutate(st)
	st.UpdatedAt = time.Now().UTC()
}

func (s *InMemorySessionStore) Lock(id string) {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()
}

func (s *InMemorySessionStore) Unlock(id string) {
	s.mu.RLock()
	m, ok := s.locks[id]
	s.mu.RUnlock()
	if ok {
		m.Unlock()
	}
}

// EvictIdle removes sessions whose last mutation is older than ttl and
// returns the number evicted. Evicted conversations are not lost: arbitration
// state rehydrates from durable history and evidence is re-fetchable.
func (s *InMemorySessionStore) EvictIdle(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, st := range s.states {
		if !st.UpdatedAt.Before(cutoff) {
			continue
		}
		// A held lock means a turn is in flight on this conversation.
		// Dropping its mutex would let a racing turn mint a fresh one and
		// bypass single-flight, so the sweep leaves it for next time.
		if m, ok := s.locks[id]; ok {
			if !m.TryLock() {
				continue
			}
			m.Unlock()
		}
		delete(s.states, id)
		delete(s.locks, id)
		evicted++
	}

	if evicted > 0 && s.logger != nil {
		s.logger.Info("idle sessions evicted",
			slog.Int("count", evicted),
			slog.Duration("ttl", ttl),
		)
	}
	return evicted
}

// Compile-time interface check.
var _ SessionStore = (*InMemorySessionStore)(nil)
