package agents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/novusai/novus/internal/evidence"
)

func TestBuildPubMedQuery(t *testing.T) {
	tests := []struct {
		name       string
		drug       string
		conditions []string
		mode       queryMode
		want       string
	}{
		{
			"drug and conditions",
			"metformin", []string{"nash", "mash"}, modeDrugAndCondition,
			`"metformin"[tiab] AND ("nash"[tiab] OR "mash"[tiab])`,
		},
		{
			"drug only",
			"metformin", nil, modeDrugOnly,
			`"metformin"[tiab]`,
		},
		{
			"conditions only",
			"", []string{"nash"}, modeConditionOnly,
			`"nash"[tiab]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildPubMedQuery(tt.drug, tt.conditions, tt.mode); got != tt.want {
				t.Errorf("buildPubMedQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLiteratureFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("db"); got != "pubmed" {
			t.Errorf("db = %q", got)
		}
		fmt.Fprint(w, `<?xml version="1.0"?>
<eSearchResult><Count>2</Count><IdList><Id>111</Id><Id>222</Id></IdList></eSearchResult>`)
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<eSummaryResult>
  <DocSum>
    <Id>111</Id>
    <Item Name="Title" Type="String">Metformin reverses hepatic steatosis</Item>
    <Item Name="FullJournalName" Type="String">Journal of Hepatology</Item>
    <Item Name="PubDate" Type="Date">2024 Mar 12</Item>
  </DocSum>
  <DocSum>
    <Id>222</Id>
    <Item Name="Title" Type="String">AMPK activation in liver disease</Item>
    <Item Name="FullJournalName" Type="String">Nature Metabolism</Item>
    <Item Name="PubDate" Type="Date">2022</Item>
  </DocSum>
</eSummaryResult>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	agent := NewLiterature(testLogger(), WithLiteratureBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{
		Drug:       "metformin",
		Conditions: []string{"nash"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"LITERATURE EVIDENCE (PUBMED)",
		"Query mode : DRUG_AND_CONDITION",
		"Total relevant papers : 2",
		"Metformin reverses hepatic steatosis",
		"Journal of Hepatology",
		"Year        : 2024",
		"https://pubmed.ncbi.nlm.nih.gov/222/",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestLiteratureFetch_NoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><eSearchResult><Count>0</Count><IdList></IdList></eSearchResult>`)
	}))
	defer srv.Close()

	agent := NewLiterature(testLogger(), WithLiteratureBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{Drug: "obscuredrug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "No relevant PubMed literature found") {
		t.Errorf("report = %q", report)
	}
}

func TestParsePubYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2024 Mar 12", 2024},
		{"2022", 2022},
		{"Winter 2019", 2019},
		{"", 0},
		{"March", 0},
	}
	for _, tt := range tests {
		if got := parsePubYear(tt.in); got != tt.want {
			t.Errorf("parsePubYear(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
