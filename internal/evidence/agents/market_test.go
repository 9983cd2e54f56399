package agents

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeMarketTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Metformin", "metformin"},
		{"non-alcoholic steatohepatitis", "non alcoholic steatohepatitis"},
		{"Type 2  Diabetes!", "type 2 diabetes"},
		{"COPD/asthma", "copd asthma"},
	}
	for _, tt := range tests {
		if got := normalizeMarketTerm(tt.in); got != tt.want {
			t.Errorf("normalizeMarketTerm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("GLP-1 agonists; SGLT2 inhibitors ;")
	want := []string{"GLP-1 agonists", "SGLT2 inhibitors"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") must be nil")
	}
}

func TestRenderMarketBlock(t *testing.T) {
	snap := &marketSnapshot{
		MarketSizeUSDBn:          2.5,
		ForecastSizeUSDBn2030:    6.8,
		CAGRPercent:              12.4,
		PatientPopulationM:       45,
		TreatedPopulationPercent: 30,
		Competitors:              8,
		BrandedGenericMix:        "70/30",
		CompetitorClasses:        []string{"GLP-1 agonists"},
		CommercialSignals:        []string{"Phase 3 readouts expected 2027"},
		Risks:                    []string{"Generic erosion"},
	}
	block := renderMarketBlock(modeDrugAndCondition, "metformin", "nash", snap)

	// The overview labels are load-bearing: the visualization extractor
	// pattern-matches them.
	for _, want := range []string{
		"MARKET SIGNALS",
		"Market overview:",
		"Current market size (USD bn)      : 2.50",
		"Forecast 2030 market size (USD bn): 6.80",
		"CAGR (%)",
		"Patient population (millions)     : 45.00",
		"Treated population (%)            : 30.00",
		"Number of competitors : 8",
		"Phase 3 readouts expected 2027",
		"Generic erosion",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
}
