package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/novusai/novus/internal/domain"
)

func TestSessionStore_CreateAndGet(t *testing.T) {
	store := NewInMemorySessionStore(nil)

	id, st := store.Create()
	if id == "" {
		t.Fatal("expected non-empty conversation id")
	}
	if st.Mode != domain.ModeSingle {
		t.Errorf("default mode = %s, want SINGLE", st.Mode)
	}
	if st.Evidence == nil {
		t.Error("default state must carry an evidence cache")
	}
	if st.HasConditionLock() {
		t.Error("fresh state must not hold a condition lock")
	}

	got, ok := store.Get(id)
	if !ok || got != st {
		t.Fatal("Get should return the created state")
	}
}

func TestSessionStore_GetUnknown(t *testing.T) {
	store := NewInMemorySessionStore(nil)
	if _, ok := store.Get("nope"); ok {
		t.Fatal("unknown id should report absent")
	}
}

func TestSessionStore_ApplyIsPartial(t *testing.T) {
	store := NewInMemorySessionStore(nil)
	id, st := store.Create()
	st.DrugsSeen = []string{"metformin"}
	before := st.UpdatedAt

	time.Sleep(time.Millisecond)
	store.Apply(id, func(s *State) {
		s.ActiveConditions = []string{"nash"}
	})

	got, _ := store.Get(id)
	if len(got.DrugsSeen) != 1 {
		t.Error("Apply must not clobber fields the mutation did not name")
	}
	if len(got.ActiveConditions) != 1 {
		t.Error("Apply must write the mutated field")
	}
	if !got.UpdatedAt.After(before) {
		t.Error("Apply must refresh UpdatedAt")
	}
}

func TestSessionStore_CreateWithIDIsIdempotent(t *testing.T) {
	store := NewInMemorySessionStore(nil)
	a := store.CreateWithID("conv-1")
	a.DrugsSeen = []string{"metformin"}

	b := store.CreateWithID("conv-1")
	if a != b {
		t.Fatal("CreateWithID must not replace existing state")
	}
	if len(b.DrugsSeen) != 1 {
		t.Fatal("existing state lost on second CreateWithID")
	}
}

func TestSessionStore_PerConversationLockSerializes(t *testing.T) {
	store := NewInMemorySessionStore(nil)
	id, _ := store.Create()

	const turns = 50
	var wg sync.WaitGroup
	for range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Lock(id)
			defer store.Unlock(id)
			store.Apply(id, func(s *State) {
				s.DrugsSeen = append(s.DrugsSeen, "drug")
			})
		}()
	}
	wg.Wait()

	st, _ := store.Get(id)
	if len(st.DrugsSeen) != turns {
		t.Fatalf("got %d appends, want %d (lost update under concurrency)", len(st.DrugsSeen), turns)
	}
}

func TestSessionStore_EvictIdle(t *testing.T) {
	store := NewInMemorySessionStore(nil)
	staleID, stale := store.Create()
	stale.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	freshID, _ := store.Create()

	if n := store.EvictIdle(24 * time.Hour); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if _, ok := store.Get(staleID); ok {
		t.Error("stale session should be evicted")
	}
	if _, ok := store.Get(freshID); !ok {
		t.Error("fresh session should survive")
	}
}

func TestSessionStore_EvictIdleSkipsInFlightTurn(t *testing.T) {
	store := NewInMemorySessionStore(nil)
	busyID, busy := store.Create()
	busy.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	staleID, stale := store.Create()
	stale.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)

	// A turn is mid-flight on the first conversation. The sweep must not
	// drop its mutex, or a racing turn would mint a fresh one and run
	// alongside the held turn.
	store.Lock(busyID)

	if n := store.EvictIdle(24 * time.Hour); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if _, ok := store.Get(busyID); !ok {
		t.Error("session with an in-flight turn must survive the sweep")
	}
	if _, ok := store.Get(staleID); ok {
		t.Error("idle session should still be evicted")
	}

	store.Unlock(busyID)
	if n := store.EvictIdle(24 * time.Hour); n != 1 {
		t.Fatalf("evicted %d sessions after unlock, want 1", n)
	}
	if _, ok := store.Get(busyID); ok {
		t.Error("released session should be evicted on the next sweep")
	}
}

func TestChatHistory_BoundedFIFO(t *testing.T) {
	st := newState()
	for i := range 15 {
		st.AddChatEntry("question", string(rune('a'+i)))
	}
	if len(st.ChatHistory) != chatHistorySize {
		t.Fatalf("history length = %d, want %d", len(st.ChatHistory), chatHistorySize)
	}
	// Oldest five evicted: first remaining answer is the sixth written.
	if st.ChatHistory[0].Assistant != "f" {
		t.Errorf("oldest surviving entry = %q, want %q", st.ChatHistory[0].Assistant, "f")
	}
}

func TestSeed_RehydratesArbitrationStateOnly(t *testing.T) {
	st := newState()
	st.Seed([]string{"nash"}, []string{"metformin", "pioglitazone"}, domain.IntentCommercial)

	if !st.HasConditionLock() {
		t.Error("seeded state should hold the persisted condition lock")
	}
	if st.Mode != domain.ModeComparison {
		t.Errorf("mode = %s, want COMPARISON from two persisted drugs", st.Mode)
	}
	if st.LastIntent != domain.IntentCommercial {
		t.Errorf("intent = %s, want COMMERCIAL", st.LastIntent)
	}
	if st.Evidence.Len() != 0 {
		t.Error("evidence cache must stay empty after rehydration")
	}
}
