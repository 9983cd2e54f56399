package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/novusai/novus/internal/evidence"
)

func ctgovStudy(nctID, title, phase, status string, startYear string) map[string]any {
	return map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{
				"nctId":      nctID,
				"briefTitle": title,
			},
			"statusModule": map[string]any{
				"overallStatus":   status,
				"startDateStruct": map[string]any{"date": startYear},
			},
			"sponsorCollaboratorsModule": map[string]any{
				"leadSponsor": map[string]any{"name": "Example University"},
			},
			"designModule": map[string]any{
				"phases": []string{phase},
			},
			"contactsLocationsModule": map[string]any{
				"locations": []map[string]any{{"city": "Boston"}},
			},
		},
	}
}

func TestClinicalFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query.term"); got != "metformin AND nash" {
			t.Errorf("query.term = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"studies": []map[string]any{
				ctgovStudy("NCT00000001", "Metformin in NASH", "PHASE2", "Recruiting", "2024-01"),
				ctgovStudy("NCT00000002", "Metformin long-term", "PHASE3", "Completed", "2019-06"),
			},
		})
	}))
	defer srv.Close()

	agent := NewClinical(testLogger(), WithClinicalBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{
		Drug:       "metformin",
		Conditions: []string{"nash"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"CLINICAL TRIAL SIGNALS",
		"Total matching trials      : 2",
		"Recruiting trials          : 1",
		"  - PHASE2 : 1",
		"  - PHASE3 : 1",
		"NCT00000001",
		"https://clinicaltrials.gov/study/NCT00000002",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestClinicalFetch_NoTrials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"studies": []any{}})
	}))
	defer srv.Close()

	agent := NewClinical(testLogger(), WithClinicalBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{Drug: "obscuredrug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "No registered clinical trials found.") {
		t.Errorf("report = %q", report)
	}
}

func TestClinicalFetch_BadRequestIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	agent := NewClinical(testLogger(), WithClinicalBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{Drug: "metformin"})
	if err != nil {
		t.Fatalf("400 should degrade to no results, got error: %v", err)
	}
	if !strings.Contains(report, "No registered clinical trials found.") {
		t.Errorf("report = %q", report)
	}
}

func TestClinicalFetch_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	agent := NewClinical(testLogger(), WithClinicalBaseURL(srv.URL))
	if _, err := agent.Fetch(context.Background(), evidence.Query{Drug: "metformin"}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestScoreTrial(t *testing.T) {
	early := trialHit{Phase: "PHASE1", Status: "Completed"}
	late := trialHit{Phase: "PHASE3", Status: "Recruiting", LocationsCount: 20}
	if scoreTrial(late) <= scoreTrial(early) {
		t.Error("recruiting late-phase trial must outscore completed early-phase trial")
	}
}

func TestParseStartYear(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2024-01", 2024},
		{"2019", 2019},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseStartYear(tt.date); got != tt.want {
			t.Errorf("parseStartYear(%q) = %d, want %d", tt.date, got, tt.want)
		}
	}
}
