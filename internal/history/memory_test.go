package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novusai/novus/internal/domain"
)

func TestAppendAndReplay(t *testing.T) {
	store := NewInMemoryTurnStore()
	ctx := context.Background()

	turns := []Turn{
		{
			ConversationID: "c1",
			UserID:         "alice",
			Question:       "what is metformin?",
			Answer:         "An oral antidiabetic.",
			Intent:         domain.IntentGeneral,
			Mode:           domain.ModeChat,
			TurnType:       "conversation",
		},
		{
			ConversationID: "c1",
			UserID:         "alice",
			Question:       "metformin for nash trials",
			Answer:         "## DIRECT ANSWER\n...",
			Conditions:     []string{"nash"},
			Drugs:          []string{"metformin"},
			Intent:         domain.IntentClinical,
			Mode:           domain.ModeSingle,
			TurnType:       "analysis",
		},
	}
	for _, tn := range turns {
		if err := store.Append(ctx, tn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Replay(ctx, "c1", "alice")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Replay returned %d turns, want 2", len(got))
	}
	if got[0].Question != "what is metformin?" || got[1].TurnType != "analysis" {
		t.Errorf("replay order wrong: %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("Append should stamp CreatedAt when zero")
	}
}

func TestReplay_WrongUserIsNotFound(t *testing.T) {
	store := NewInMemoryTurnStore()
	ctx := context.Background()

	if err := store.Append(ctx, Turn{ConversationID: "c1", UserID: "alice", Question: "q"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := store.Replay(ctx, "c1", "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Replay for other user: err = %v, want ErrNotFound", err)
	}
	if _, err := store.Replay(ctx, "missing", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Replay for unknown conversation: err = %v, want ErrNotFound", err)
	}
}

func TestListConversations_MostRecentFirst(t *testing.T) {
	store := NewInMemoryTurnStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []Turn{
		{ConversationID: "old", UserID: "alice", Question: "first", CreatedAt: base},
		{ConversationID: "old", UserID: "alice", Question: "second", CreatedAt: base.Add(time.Minute)},
		{ConversationID: "new", UserID: "alice", Question: "newer", CreatedAt: base.Add(time.Hour)},
		{ConversationID: "other", UserID: "bob", Question: "not mine", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, tn := range seed {
		if err := store.Append(ctx, tn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.ListConversations(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d conversations, want 2", len(got))
	}
	if got[0].ConversationID != "new" || got[1].ConversationID != "old" {
		t.Errorf("order = [%s %s], want [new old]", got[0].ConversationID, got[1].ConversationID)
	}
	if got[1].LastQuestion != "second" || got[1].TurnCount != 2 {
		t.Errorf("old summary = %+v, want last question %q and 2 turns", got[1], "second")
	}
}

func TestLatest(t *testing.T) {
	store := NewInMemoryTurnStore()
	ctx := context.Background()

	got, err := store.Latest(ctx, "empty")
	if err != nil || got != nil {
		t.Fatalf("Latest on empty conversation = (%v, %v), want (nil, nil)", got, err)
	}

	for _, q := range []string{"first", "second"} {
		if err := store.Append(ctx, Turn{ConversationID: "c1", UserID: "alice", Question: q}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err = store.Latest(ctx, "c1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Question != "second" {
		t.Errorf("Latest question = %q, want %q", got.Question, "second")
	}
}

func TestAppend_CopiesSlices(t *testing.T) {
	store := NewInMemoryTurnStore()
	ctx := context.Background()

	drugs := []string{"metformin"}
	if err := store.Append(ctx, Turn{ConversationID: "c1", UserID: "alice", Drugs: drugs}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	drugs[0] = "mutated"

	got, err := store.Latest(ctx, "c1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Drugs[0] != "metformin" {
		t.Errorf("stored turn shares caller's slice: drugs = %v", got.Drugs)
	}
}
