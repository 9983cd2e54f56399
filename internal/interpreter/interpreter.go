// Package interpreter turns a free-text user query into a structured reading:
// the drugs mentioned, the condition (expanded with biomedical synonyms), and
// the user intent. A completion model does the extraction; the output contract
// is a strict three-line format so parsing stays trivial and auditable.
package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/llm"
	"github.com/novusai/novus/internal/synonyms"
)

const systemPrompt = `You are a biomedical query interpreter.

Your task is to extract:
1) the primary drug (if any),
2) the primary disease (if any),
3) the user intent.

OUTPUT FORMAT (EXACTLY 3 LINES):
DRUG: <comma-separated drug names or NONE>
CONDITION: <condition name or NONE>
INTENT: <ONE OF THE VALUES BELOW>

ALLOWED INTENT VALUES:
- CLINICAL
- COMMERCIAL
- INTERNAL
- FULL_OPPORTUNITY
- GENERAL`

const (
	interpretMaxTokens   = 60
	interpretTemperature = 0.0
)

// Reading is the structured interpretation of one user query.
type Reading struct {
	Drugs      []string
	Conditions []string
	Intent     domain.Intent
}

// Interpreter extracts a Reading from raw query text.
type Interpreter struct {
	provider llm.Provider
	expander synonyms.Expander
	logger   *slog.Logger
}

// New creates an Interpreter backed by the given completion provider and
// synonym expander. A nil expander disables expansion and conditions pass
// through unexpanded.
func New(provider llm.Provider, expander synonyms.Expander, logger *slog.Logger) *Interpreter {
	return &Interpreter{provider: provider, expander: expander, logger: logger}
}

// Interpret extracts drugs, conditions, and intent from the query. A blank
// query short-circuits to an empty GENERAL reading without a model call. The
// extracted condition is expanded into its synonym set.
func (i *Interpreter) Interpret(ctx context.Context, query string) (*Reading, error) {
	if strings.TrimSpace(query) == "" {
		return &Reading{Intent: domain.IntentGeneral}, nil
	}

	resp, err := i.provider.Complete(ctx, &llm.Request{
		SystemPrompt: systemPrompt,
		Prompt:       query,
		MaxTokens:    interpretMaxTokens,
		Temperature:  interpretTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("interpreting query: %w", err)
	}

	parsed, err := parseOutput(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("interpreting query: %w", err)
	}

	reading := &Reading{
		Drugs:  parsed.drugs,
		Intent: domain.ParseIntent(parsed.intent),
	}
	if parsed.condition != "" {
		if i.expander != nil {
			reading.Conditions = i.expander.Expand(ctx, parsed.condition)
		} else {
			reading.Conditions = []string{parsed.condition}
		}
	}

	i.logger.DebugContext(ctx, "query interpreted",
		slog.Any("drugs", reading.Drugs),
		slog.Any("conditions", reading.Conditions),
		slog.String("intent", string(reading.Intent)),
	)
	return reading, nil
}

type parsedOutput struct {
	drugs     []string
	condition string
	intent    string
}

// parseOutput enforces the three-line DRUG/CONDITION/INTENT contract. Lines
// outside the contract are ignored; anything other than exactly one of each
// tagged line is a model error.
func parseOutput(text string) (*parsedOutput, error) {
	var tagged []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "DRUG:") ||
			strings.HasPrefix(line, "CONDITION:") ||
			strings.HasPrefix(line, "INTENT:") {
			tagged = append(tagged, line)
		}
	}
	if len(tagged) != 3 {
		return nil, fmt.Errorf("malformed interpreter output, got %d tagged lines", len(tagged))
	}
	if !strings.HasPrefix(tagged[0], "DRUG:") ||
		!strings.HasPrefix(tagged[1], "CONDITION:") ||
		!strings.HasPrefix(tagged[2], "INTENT:") {
		return nil, fmt.Errorf("malformed interpreter output, lines out of order: %v", tagged)
	}

	out := &parsedOutput{}

	rawDrug := strings.TrimSpace(strings.TrimPrefix(tagged[0], "DRUG:"))
	if !strings.EqualFold(rawDrug, "NONE") {
		for _, d := range strings.Split(rawDrug, ",") {
			if norm := domain.NormalizeEntity(d); norm != "" {
				out.drugs = append(out.drugs, norm)
			}
		}
	}

	rawCondition := strings.TrimSpace(strings.TrimPrefix(tagged[1], "CONDITION:"))
	if !strings.EqualFold(rawCondition, "NONE") {
		out.condition = domain.NormalizeEntity(rawCondition)
	}

	out.intent = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(tagged[2], "INTENT:")))
	return out, nil
}
