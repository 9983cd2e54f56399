package synthesis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/llm"
)

type fakeProvider struct {
	answer     string
	err        error
	lastPrompt string
	calls      int
}

func (f *fakeProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.calls++
	f.lastPrompt = req.Prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.answer}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChat_PromptCarriesContextAndHistory(t *testing.T) {
	provider := &fakeProvider{answer: "Hello! Ask me about drug repurposing."}
	s := New(provider, testLogger())

	answer := s.Chat(context.Background(), "what can you do?",
		[]string{"nash"}, []string{"metformin"},
		[]ChatTurn{{User: "hi", Assistant: "Hello."}})

	if answer != "Hello! Ask me about drug repurposing." {
		t.Errorf("answer = %q", answer)
	}
	for _, want := range []string{
		"Condition: nash",
		"Drug(s): metformin",
		"User: hi\nAnswer: Hello.",
		"User: what can you do?\nAnswer:",
	} {
		if !strings.Contains(provider.lastPrompt, want) {
			t.Errorf("chat prompt missing %q:\n%s", want, provider.lastPrompt)
		}
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestAnalyze_PromptShape(t *testing.T) {
	provider := &fakeProvider{answer: "## Conclusion\nPromising signal."}
	s := New(provider, testLogger())

	s.Analyze(context.Background(), "is metformin viable for nash?",
		"metformin", []string{"nash", "mash"}, domain.IntentClinical, "trial evidence here")

	for _, want := range []string{
		"USER QUESTION: is metformin viable for nash?",
		"Drug: metformin",
		"Condition: nash, mash",
		"Intent: CLINICAL",
		"trial evidence here",
	} {
		if !strings.Contains(provider.lastPrompt, want) {
			t.Errorf("analytical prompt missing %q", want)
		}
	}
}

func TestCompare_GroupsEvidenceByDrug(t *testing.T) {
	provider := &fakeProvider{answer: "## METFORMIN\n..."}
	s := New(provider, testLogger())

	s.Compare(context.Background(), "which is better?", []string{"nash"},
		[]DrugEvidence{
			{Drug: "metformin", Evidence: "metformin evidence"},
			{Drug: "pioglitazone", Evidence: ""},
		})

	for _, want := range []string{
		"- metformin",
		"- pioglitazone",
		"[METFORMIN]\nmetformin evidence",
	} {
		if !strings.Contains(provider.lastPrompt, want) {
			t.Errorf("comparison prompt missing %q", want)
		}
	}
	if strings.Contains(provider.lastPrompt, "[PIOGLITAZONE]") {
		t.Error("drug without evidence must not contribute an evidence block")
	}
}

func TestComplete_DegradesToApology(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	s := New(provider, testLogger())

	answer := s.Chat(context.Background(), "hello", nil, nil, nil)
	if answer != ApologyFallback {
		t.Errorf("answer = %q, want apology fallback", answer)
	}
}
