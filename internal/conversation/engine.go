package conversation

import (
	"errors"
	"strings"

	"github.com/novusai/novus/internal/domain"
)

// Arbitration failures. Both short-circuit the turn before any external call.
var (
	// ErrConditionConflict is returned when a turn supplies a condition set
	// wholly disjoint from the locked one. The conversation cannot pivot to
	// an unrelated condition; the caller must start a new conversation.
	ErrConditionConflict = errors.New("condition change is not allowed")

	// ErrNoCondition is returned when a non-general turn resolves without
	// any condition, which evidence dispatch requires.
	ErrNoCondition = errors.New("no condition set")
)

// TurnInput is the interpreted content of one user message.
type TurnInput struct {
	Drugs      []string
	Conditions []string
	Intent     domain.Intent
}

// Resolution is the arbitration outcome for one turn. It carries the values
// to be written back to session state; the caller applies them under the
// conversation lock so a rejected turn leaves state untouched.
type Resolution struct {
	ActiveConditions []string
	DrugsSeen        []string
	Intent           domain.Intent
	Mode             domain.Mode
}

// ResolveIntent applies intent stickiness: a GENERAL interpretation inherits
// the prior non-general intent, so chit-chat turns keep analyzing the topic
// under discussion. A non-general interpretation always wins and becomes the
// new sticky value.
func ResolveIntent(prior, interpreted domain.Intent) domain.Intent {
	if interpreted.IsGeneral() && !prior.IsGeneral() {
		return prior
	}
	return interpreted
}

// Resolve arbitrates a non-general turn against the prior state. It is a pure
// function over its inputs: no I/O, no mutation of prev.
//
// Resolution order: condition lock (adopt, widen on overlap, reject on
// disjoint), mandatory-condition check, drug accumulation, mode derivation.
func Resolve(prev *State, in TurnInput) (*Resolution, error) {
	conditions, err := resolveConditions(prev.ActiveConditions, in.Conditions)
	if err != nil {
		return nil, err
	}
	if len(conditions) == 0 {
		return nil, ErrNoCondition
	}

	drugs := unionPreservingOrder(prev.DrugsSeen, in.Drugs)

	return &Resolution{
		ActiveConditions: conditions,
		DrugsSeen:        drugs,
		Intent:           ResolveIntent(prev.LastIntent, in.Intent),
		Mode:             domain.DeriveMode(len(drugs)),
	}, nil
}

// resolveConditions implements the condition-lock rules. With no lock, the
// turn's conditions are adopted. With a lock and new conditions, any overlap
// widens the lock to the union; no overlap at all is a conflict. With no new
// conditions the lock is reused unchanged.
func resolveConditions(active, supplied []string) ([]string, error) {
	if len(supplied) == 0 {
		return append([]string(nil), active...), nil
	}

	normalized := normalizeSet(supplied)
	if len(active) == 0 {
		return normalized, nil
	}

	activeSet := make(map[string]struct{}, len(active))
	for _, c := range active {
		activeSet[strings.ToLower(c)] = struct{}{}
	}

	overlap := false
	for _, c := range normalized {
		if _, ok := activeSet[c]; ok {
			overlap = true
			break
		}
	}
	if !overlap {
		return nil, ErrConditionConflict
	}

	return unionPreservingOrder(active, normalized), nil
}

// normalizeSet lower-cases, trims, and deduplicates while keeping first-seen
// order.
func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// unionPreservingOrder returns base plus any extras not already present.
// Base entries keep their positions, so accumulated sets grow monotonically.
func unionPreservingOrder(base, extras []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]struct{}, len(base))
	for _, v := range base {
		seen[strings.ToLower(v)] = struct{}{}
	}
	for _, v := range extras {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
