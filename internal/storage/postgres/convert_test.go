package postgres

import (
	"reflect"
	"testing"
	"time"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/history"
	"github.com/novusai/novus/internal/visualization"
)

func TestTurnModelRoundTrip(t *testing.T) {
	in := history.Turn{
		ConversationID: "c1",
		UserID:         "alice",
		Question:       "metformin for nash market",
		Answer:         "## DIRECT ANSWER\n...",
		Conditions:     []string{"nash", "fatty liver"},
		Drugs:          []string{"metformin"},
		Intent:         domain.IntentCommercial,
		Mode:           domain.ModeSingle,
		TurnType:       "analysis",
		Visualization: &visualization.Payload{
			Market: &visualization.Market{
				CurrentUSDBn:      2.5,
				Forecast2030USDBn: 6.8,
				CAGRPercent:       12.4,
			},
		},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	model, err := toTurnModel(in)
	if err != nil {
		t.Fatalf("toTurnModel: %v", err)
	}
	out := fromTurnModel(model)

	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestTurnModelRoundTrip_EmptyFields(t *testing.T) {
	in := history.Turn{
		ConversationID: "c1",
		UserID:         "alice",
		Question:       "hi",
		Answer:         "Hello.",
		Intent:         domain.IntentGeneral,
		Mode:           domain.ModeChat,
		TurnType:       "conversation",
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	model, err := toTurnModel(in)
	if err != nil {
		t.Fatalf("toTurnModel: %v", err)
	}
	if model.Conditions != "" || model.Drugs != "" || model.Visualization != "" {
		t.Errorf("empty fields should encode as empty columns: %+v", model)
	}

	out := fromTurnModel(model)
	if out.Conditions != nil || out.Drugs != nil || out.Visualization != nil {
		t.Errorf("empty columns should decode to nil fields: %+v", out)
	}
}

func TestFromTurnModel_MalformedJSONDegrades(t *testing.T) {
	out := fromTurnModel(TurnModel{
		ConversationID: "c1",
		Conditions:     "not json",
		Visualization:  "{broken",
	})
	if out.Conditions != nil || out.Visualization != nil {
		t.Errorf("malformed JSON should degrade to nil, got %+v", out)
	}
}
