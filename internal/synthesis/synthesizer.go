// Package synthesis composes the completion prompts and produces the turn's
// textual answer. Three mutually exclusive prompt shapes exist: a minimal chat
// prompt for general turns, a single-subject analytical prompt, and a
// comparative prompt enumerating each drug's evidence separately. Completion
// failures degrade to a fixed apology string; a turn always gets an answer.
package synthesis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/llm"
)

// ApologyFallback is returned when the completion capability fails.
const ApologyFallback = "Sorry, I couldn't generate a response at this time."

const (
	synthesisMaxTokens   = 2048
	synthesisTemperature = 0.2
)

// DrugEvidence pairs one drug with its flattened evidence text for the
// comparison prompt.
type DrugEvidence struct {
	Drug     string
	Evidence string
}

// Synthesizer turns prompts into answers via the completion provider.
type Synthesizer struct {
	provider llm.Provider
	logger   *slog.Logger
}

// New creates a Synthesizer.
func New(provider llm.Provider, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{provider: provider, logger: logger}
}

// Chat answers a general-intent turn, grounding the reply in the locked
// conversation context and the recent chat history.
func (s *Synthesizer) Chat(ctx context.Context, message string, conditions, drugs []string, history []ChatTurn) string {
	return s.complete(ctx, buildChatPrompt(message, conditions, drugs, history))
}

// Analyze answers a SINGLE-mode turn for one drug against the locked
// condition set, bound to the flattened evidence text.
func (s *Synthesizer) Analyze(ctx context.Context, message, drug string, conditions []string, intent domain.Intent, evidenceText string) string {
	return s.complete(ctx, buildAnalyticalPrompt(message, drug, conditions, string(intent), evidenceText))
}

// Compare answers a COMPARISON-mode turn. Each drug's evidence is rendered as
// its own tagged block; drugs with no evidence are listed but contribute no
// block, which the prompt instructs the model to state plainly.
func (s *Synthesizer) Compare(ctx context.Context, message string, conditions []string, perDrug []DrugEvidence) string {
	drugs := make([]string, 0, len(perDrug))
	blocks := make([]string, 0, len(perDrug))
	for _, de := range perDrug {
		drugs = append(drugs, de.Drug)
		if de.Evidence != "" {
			blocks = append(blocks, "["+strings.ToUpper(de.Drug)+"]\n"+de.Evidence)
		}
	}
	return s.complete(ctx, buildComparisonPrompt(message, drugs, conditions, blocks))
}

// complete makes exactly one completion call and degrades to the apology
// fallback on failure.
func (s *Synthesizer) complete(ctx context.Context, prompt string) string {
	resp, err := s.provider.Complete(ctx, &llm.Request{
		Prompt:      prompt,
		MaxTokens:   synthesisMaxTokens,
		Temperature: synthesisTemperature,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "synthesis completion failed",
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return ApologyFallback
	}
	return strings.TrimSpace(resp.Text)
}
