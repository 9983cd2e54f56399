package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/history"
	"github.com/novusai/novus/internal/visualization"
)

// toTurnModel converts a domain turn to its row representation.
func toTurnModel(t history.Turn) (TurnModel, error) {
	conditions, err := marshalStrings(t.Conditions)
	if err != nil {
		return TurnModel{}, fmt.Errorf("encoding conditions: %w", err)
	}
	drugs, err := marshalStrings(t.Drugs)
	if err != nil {
		return TurnModel{}, fmt.Errorf("encoding drugs: %w", err)
	}

	var viz string
	if t.Visualization != nil {
		raw, err := json.Marshal(t.Visualization)
		if err != nil {
			return TurnModel{}, fmt.Errorf("encoding visualization: %w", err)
		}
		viz = string(raw)
	}

	return TurnModel{
		ConversationID: t.ConversationID,
		UserID:         t.UserID,
		Question:       t.Question,
		Answer:         t.Answer,
		Conditions:     conditions,
		Drugs:          drugs,
		Intent:         string(t.Intent),
		Mode:           string(t.Mode),
		TurnType:       t.TurnType,
		Visualization:  viz,
		CreatedAt:      t.CreatedAt,
	}, nil
}

// fromTurnModel converts a row back to a domain turn. Malformed JSON columns
// degrade to empty values rather than failing the whole read.
func fromTurnModel(m TurnModel) history.Turn {
	t := history.Turn{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Question:       m.Question,
		Answer:         m.Answer,
		Conditions:     unmarshalStrings(m.Conditions),
		Drugs:          unmarshalStrings(m.Drugs),
		Intent:         domain.Intent(m.Intent),
		Mode:           domain.Mode(m.Mode),
		TurnType:       m.TurnType,
		CreatedAt:      m.CreatedAt,
	}
	if m.Visualization != "" {
		var p visualization.Payload
		if err := json.Unmarshal([]byte(m.Visualization), &p); err == nil {
			t.Visualization = &p
		}
	}
	return t
}

func marshalStrings(ss []string) (string, error) {
	if len(ss) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
