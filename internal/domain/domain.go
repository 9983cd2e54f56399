// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"regexp"
	"strings"
)

// Intent is the coarse category of a user query. It determines which evidence
// agents are consulted and how the synthesis prompt is shaped.
type Intent string

const (
	IntentClinical        Intent = "CLINICAL"
	IntentCommercial      Intent = "COMMERCIAL"
	IntentInternal        Intent = "INTERNAL"
	IntentFullOpportunity Intent = "FULL_OPPORTUNITY"
	IntentGeneral         Intent = "GENERAL"
)

// ParseIntent maps a raw string to a known Intent. Unknown values fall back
// to GENERAL so a misbehaving interpreter can never select an agent group.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(s))) {
	case IntentClinical:
		return IntentClinical
	case IntentCommercial:
		return IntentCommercial
	case IntentInternal:
		return IntentInternal
	case IntentFullOpportunity:
		return IntentFullOpportunity
	default:
		return IntentGeneral
	}
}

// IsGeneral reports whether the intent is the chit-chat category that skips
// condition/drug arbitration and evidence dispatch.
func (i Intent) IsGeneral() bool { return i == IntentGeneral }

// Mode indicates whether a conversation concerns one drug or several.
type Mode string

const (
	ModeSingle     Mode = "SINGLE"
	ModeComparison Mode = "COMPARISON"
	// ModeChat is recorded on persisted general-intent turns. It is never
	// stored in session state; session mode stays a pure function of the
	// accumulated drug count.
	ModeChat Mode = "CHAT"
)

// DeriveMode returns the mode implied by the number of accumulated drugs.
func DeriveMode(drugCount int) Mode {
	if drugCount > 1 {
		return ModeComparison
	}
	return ModeSingle
}

var bracketRe = regexp.MustCompile(`\s*\(.*?\)\s*`)
var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeEntity canonicalizes a drug or condition name: parentheticals
// removed, whitespace collapsed, lower-cased.
func NormalizeEntity(s string) string {
	s = bracketRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
