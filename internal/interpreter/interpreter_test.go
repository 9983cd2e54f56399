package interpreter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/llm"
)

type fakeProvider struct {
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type fakeExpander struct{ byBase map[string][]string }

func (f *fakeExpander) Expand(_ context.Context, condition string) []string {
	if terms, ok := f.byBase[condition]; ok {
		return terms
	}
	return []string{condition}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInterpret(t *testing.T) {
	provider := &fakeProvider{text: "DRUG: Metformin\nCONDITION: NASH\nINTENT: CLINICAL"}
	expander := &fakeExpander{byBase: map[string][]string{
		"nash": {"nash", "mash", "nonalcoholic steatohepatitis"},
	}}
	in := New(provider, expander, testLogger())

	got, err := in.Interpret(context.Background(), "trials for metformin in NASH?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Reading{
		Drugs:      []string{"metformin"},
		Conditions: []string{"nash", "mash", "nonalcoholic steatohepatitis"},
		Intent:     domain.IntentClinical,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Interpret = %+v, want %+v", got, want)
	}
}

func TestInterpret_EmptyQuerySkipsModel(t *testing.T) {
	provider := &fakeProvider{}
	in := New(provider, &fakeExpander{}, testLogger())

	got, err := in.Interpret(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != domain.IntentGeneral || len(got.Drugs) != 0 || len(got.Conditions) != 0 {
		t.Errorf("empty query reading = %+v, want empty GENERAL", got)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times for empty query, want 0", provider.calls)
	}
}

func TestInterpret_MultipleDrugs(t *testing.T) {
	provider := &fakeProvider{text: "DRUG: Metformin, Pioglitazone (Actos)\nCONDITION: NONE\nINTENT: COMMERCIAL"}
	in := New(provider, &fakeExpander{}, testLogger())

	got, err := in.Interpret(context.Background(), "compare metformin and pioglitazone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got.Drugs, []string{"metformin", "pioglitazone"}) {
		t.Errorf("Drugs = %v", got.Drugs)
	}
	if len(got.Conditions) != 0 {
		t.Errorf("Conditions = %v, want none", got.Conditions)
	}
}

func TestInterpret_NilExpanderPassesConditionThrough(t *testing.T) {
	provider := &fakeProvider{text: "DRUG: Metformin\nCONDITION: NASH\nINTENT: CLINICAL"}
	in := New(provider, nil, testLogger())

	got, err := in.Interpret(context.Background(), "metformin in NASH?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got.Conditions, []string{"nash"}) {
		t.Errorf("Conditions = %v, want unexpanded [nash]", got.Conditions)
	}
}

func TestInterpret_UnknownIntentFallsBackToGeneral(t *testing.T) {
	provider := &fakeProvider{text: "DRUG: NONE\nCONDITION: NONE\nINTENT: REGULATORY"}
	in := New(provider, &fakeExpander{}, testLogger())

	got, err := in.Interpret(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != domain.IntentGeneral {
		t.Errorf("Intent = %s, want GENERAL", got.Intent)
	}
}

func TestInterpret_ProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	in := New(provider, &fakeExpander{}, testLogger())

	if _, err := in.Interpret(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when provider fails")
	}
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"canonical", "DRUG: aspirin\nCONDITION: migraine\nINTENT: CLINICAL", false},
		{"extra prose ignored", "Here you go:\nDRUG: aspirin\nCONDITION: migraine\nINTENT: CLINICAL\nHope that helps!", false},
		{"missing line", "DRUG: aspirin\nINTENT: CLINICAL", true},
		{"duplicated line", "DRUG: a\nDRUG: b\nCONDITION: c\nINTENT: CLINICAL", true},
		{"out of order", "INTENT: CLINICAL\nDRUG: aspirin\nCONDITION: migraine", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOutput(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseOutput(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}
