package httpapi

import (
	"testing"
	"time"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/history"
	"github.com/novusai/novus/internal/visualization"
)

func TestTurnsToMessages(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	turns := []history.Turn{
		{
			Question:  "hello",
			Answer:    "hi, ask me about a drug",
			Intent:    domain.IntentGeneral,
			Mode:      domain.ModeChat,
			CreatedAt: created,
		},
		{
			Question: "market for metformin in glioblastoma",
			Answer:   "analysis text",
			Intent:   domain.IntentCommercial,
			Mode:     domain.ModeSingle,
			Visualization: &visualization.Payload{
				Market: &visualization.Market{CurrentUSDBn: 2.5},
			},
			CreatedAt: created.Add(time.Minute),
		},
	}

	msgs := turnsToMessages(turns)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hi, ask me about a drug" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
	if msgs[1].Visualization != nil {
		t.Error("chat answer should not carry a visualization")
	}
	if msgs[3].Role != "assistant" {
		t.Errorf("expected assistant role, got %q", msgs[3].Role)
	}
	if msgs[3].Intent != string(domain.IntentCommercial) || msgs[3].Mode != string(domain.ModeSingle) {
		t.Errorf("assistant message lost metadata: %+v", msgs[3])
	}
	if msgs[3].Visualization == nil || msgs[3].Visualization.Market.CurrentUSDBn != 2.5 {
		t.Errorf("assistant message lost visualization: %+v", msgs[3].Visualization)
	}
}

func TestTurnsToMessages_Empty(t *testing.T) {
	if msgs := turnsToMessages(nil); len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestNewCorrelationID(t *testing.T) {
	a := newCorrelationID()
	b := newCorrelationID()
	if len(a) != 16 {
		t.Errorf("expected 16 hex characters, got %d", len(a))
	}
	if a == b {
		t.Error("correlation IDs should be unique")
	}
}
