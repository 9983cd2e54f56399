package synonyms

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NASH", "nash"},
		{"Nonalcoholic Steatohepatitis (NASH)", "nonalcoholic steatohepatitis"},
		{"nash - nonalcoholic steatohepatitis", "nonalcoholic steatohepatitis"},
		{"steatohepatitis, nonalcoholic", "steatohepatitis"},
		{"  fatty   liver  ", "fatty liver"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidDiseaseName(t *testing.T) {
	acronyms := map[string]struct{}{"mash": {}, "copd": {}}

	tests := []struct {
		text string
		want bool
	}{
		{"mash", true},                         // canonical acronym
		{"nonalcoholic steatohepatitis", true}, // full form
		{"nash", false},                        // short, not in acronym set
		{"12345", false},
		{"accumulation of fat in", false},
		{"inflammation of", false},
		{"copd", true},
	}
	for _, tt := range tests {
		if got := isValidDiseaseName(tt.text, acronyms); got != tt.want {
			t.Errorf("isValidDiseaseName(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSelectSynonyms(t *testing.T) {
	raw := []string{
		"MASH",
		"nonalcoholic steatohepatitis",
		"NASH (disorder)",
		"fatty liver disease, nonalcoholic",
		"liver inflammation of",
		"steatohepatitis, non-alcoholic",
	}
	got := selectSynonyms("nash", raw)

	if len(got) != 3 {
		t.Fatalf("selectSynonyms returned %d terms, want 3: %v", len(got), got)
	}
	if got[0] != "nash" {
		t.Errorf("base term must come first, got %v", got)
	}
	want := []string{"nash", "mash", "nonalcoholic steatohepatitis"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selectSynonyms = %v, want %v", got, want)
	}
}

func TestSelectSynonyms_NoValidCandidates(t *testing.T) {
	got := selectSynonyms("nash", []string{"123", "x of", "ab"})
	if !reflect.DeepEqual(got, []string{"nash"}) {
		t.Errorf("selectSynonyms = %v, want base only", got)
	}
}

func TestOLSExpander_Expand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "nash" {
			t.Errorf("search q = %q, want nash", got)
		}
		if got := r.URL.Query().Get("ontology"); got != "mondo,doid,mesh" {
			t.Errorf("search ontology = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"docs": []map[string]any{{
					"iri":           "http://purl.obolibrary.org/obo/MONDO_0013209",
					"ontology_name": "mondo",
				}},
			},
		})
	})
	mux.HandleFunc("/ontologies/mondo/terms", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"_embedded": map[string]any{
				"terms": []map[string]any{{
					"synonyms": []string{"MASH", "nonalcoholic steatohepatitis", "NASH (disorder)"},
				}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewOLSExpander(testLogger(), WithBaseURL(srv.URL))
	got := e.Expand(context.Background(), "NASH")

	want := []string{"nash", "mash", "nonalcoholic steatohepatitis"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestOLSExpander_DegradesToBaseOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewOLSExpander(testLogger(), WithBaseURL(srv.URL))
	got := e.Expand(context.Background(), "Pulmonary Fibrosis")

	if !reflect.DeepEqual(got, []string{"pulmonary fibrosis"}) {
		t.Errorf("Expand on failure = %v, want base term only", got)
	}
}

func TestOLSExpander_NoSearchHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": map[string]any{"docs": []any{}}})
	}))
	defer srv.Close()

	e := NewOLSExpander(testLogger(), WithBaseURL(srv.URL))
	got := e.Expand(context.Background(), "notadisease")

	if !reflect.DeepEqual(got, []string{"notadisease"}) {
		t.Errorf("Expand with no hits = %v, want base term only", got)
	}
}
