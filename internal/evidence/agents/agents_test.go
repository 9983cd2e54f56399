package agents

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		drug       string
		conditions []string
		want       queryMode
	}{
		{"metformin", []string{"nash"}, modeDrugAndCondition},
		{"metformin", nil, modeDrugOnly},
		{"", []string{"nash"}, modeConditionOnly},
		{"", nil, modeNone},
	}
	for _, tt := range tests {
		if got := resolveMode(tt.drug, tt.conditions); got != tt.want {
			t.Errorf("resolveMode(%q, %v) = %q, want %q", tt.drug, tt.conditions, got, tt.want)
		}
	}
}

func TestCleanConditions(t *testing.T) {
	got := cleanConditions([]string{" nash ", "", "  ", "mash"})
	if len(got) != 2 || got[0] != "nash" || got[1] != "mash" {
		t.Errorf("cleanConditions = %v", got)
	}
}
