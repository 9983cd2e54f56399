// Package evidence implements the evidence dispatcher: for a given drug,
// condition set, and intent it selects the evidence agents to consult,
// fans out to them, and assembles their reports into a structured bundle.
// Bundles are memoized per (drug, condition set, intent) so an expensive,
// rate-limited external lookup happens at most once per conversation.
package evidence

import (
	"strings"
)

// Agent names. These are stable identifiers: they key bundle sections and
// appear as [AGENT: NAME] tags in the flattened prompt text.
const (
	AgentClinical   = "clinical"
	AgentLiterature = "literature"
	AgentMarket     = "market"
	AgentPatents    = "patents"
	AgentWeb        = "web"
	AgentInternal   = "internal"
)

// FailurePlaceholder is recorded as an agent's section when its fetch fails.
// Degraded evidence is preferable to no answer, so a failed agent never
// aborts the turn.
const FailurePlaceholder = "ERROR: Agent call failed."

// Bundle holds the per-agent evidence sections for one (drug, conditions,
// intent) fetch. It is built as structured data; the [AGENT: NAME] delimited
// text exists only at the completion-prompt boundary via Flatten.
type Bundle struct {
	order    []string
	sections map[string]string
}

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{sections: make(map[string]string)}
}

// Add records an agent's section text, preserving insertion order.
// Adding the same agent twice overwrites the text but keeps the position.
func (b *Bundle) Add(agent, text string) {
	if _, ok := b.sections[agent]; !ok {
		b.order = append(b.order, agent)
	}
	b.sections[agent] = text
}

// Section returns the text produced by the named agent, or "" if absent.
// Visualization extraction uses this instead of re-parsing delimiter tags.
func (b *Bundle) Section(agent string) string {
	return b.sections[agent]
}

// Agents returns the agent names in insertion order.
func (b *Bundle) Agents() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Degraded reports whether any section holds the failure placeholder.
func (b *Bundle) Degraded() bool {
	for _, text := range b.sections {
		if text == FailurePlaceholder {
			return true
		}
	}
	return false
}

// Flatten renders the bundle as the delimited text handed to the completion
// prompt. The output is deterministic for a given bundle, so cache hits yield
// byte-identical prompt evidence.
func (b *Bundle) Flatten() string {
	var sb strings.Builder
	sb.WriteString("=== EVIDENCE BUNDLE START ===\n\n")
	for _, agent := range b.order {
		sb.WriteString("[AGENT: ")
		sb.WriteString(strings.ToUpper(agent))
		sb.WriteString("]\n")
		sb.WriteString(strings.TrimSpace(b.sections[agent]))
		sb.WriteString("\n\n")
	}
	sb.WriteString("=== EVIDENCE BUNDLE END ===")
	return sb.String()
}
