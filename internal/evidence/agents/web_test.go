package agents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/novusai/novus/internal/evidence"
)

func TestBuildQueryVariants(t *testing.T) {
	got := buildQueryVariants("metformin", "fatty liver")
	want := []string{
		`"metformin" "fatty liver"`,
		"metformin fatty liver",
		"metformin liver",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildQueryVariants = %v, want %v", got, want)
	}

	if got := buildQueryVariants("metformin", ""); !reflect.DeepEqual(got, []string{`"metformin"`}) {
		t.Errorf("drug-only variants = %v", got)
	}
}

func TestClassifySignal(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"www.fda.gov", "REGULATORY"},
		{"pubmed.ncbi.nlm.nih.gov", "SCHOLARLY"},
		{"clinicaltrials.gov", "PIPELINE"},
		{"fiercepharma.com", "NEWS"},
		{"example.com", "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := classifySignal(tt.domain); got != tt.want {
			t.Errorf("classifySignal(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}

func TestConfidenceForType(t *testing.T) {
	tests := []struct {
		signalType string
		want       string
	}{
		{"REGULATORY", "HIGH"},
		{"SCHOLARLY", "HIGH"},
		{"PIPELINE", "MEDIUM"},
		{"NEWS", "LOW"},
		{"UNKNOWN", "LOW"},
	}
	for _, tt := range tests {
		if got := confidenceForType(tt.signalType); got != tt.want {
			t.Errorf("confidenceForType(%q) = %q, want %q", tt.signalType, got, tt.want)
		}
	}
}

func TestResolveResultURL(t *testing.T) {
	wrapped := "//duckduckgo.com/l/?uddg=" + url.QueryEscape("https://www.fda.gov/news")
	if got := resolveResultURL(wrapped); got != "https://www.fda.gov/news" {
		t.Errorf("resolveResultURL(wrapped) = %q", got)
	}
	if got := resolveResultURL("https://example.com/x"); got != "https://example.com/x" {
		t.Errorf("resolveResultURL(direct) = %q", got)
	}
}

func TestIsBlocked(t *testing.T) {
	if !isBlocked("https://www.reddit.com/r/medicine") {
		t.Error("reddit must be blocked")
	}
	if isBlocked("https://www.fda.gov/news") {
		t.Error("fda.gov must not be blocked")
	}
}

func TestWebFetch(t *testing.T) {
	page := fmt.Sprintf(`<html><body>
<div class="result results_links web-result">
  <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=%s">FDA reviews metformin labeling</a>
  <div class="result__snippet">The agency announced a review of metformin use in liver disease.</div>
</div>
<div class="result results_links web-result">
  <a rel="nofollow" class="result__a" href="https://www.reddit.com/r/x">Forum chatter</a>
  <div class="result__snippet">blocked source</div>
</div>
</body></html>`, url.QueryEscape("https://www.fda.gov/news/metformin"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	agent := NewWeb(testLogger(), WithWebBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{
		Drug:       "metformin",
		Conditions: []string{"nash"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"WEB INTELLIGENCE SIGNALS",
		"FDA reviews metformin labeling",
		"Source     : www.fda.gov",
		"Type       : REGULATORY",
		"Confidence : HIGH",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "reddit") {
		t.Error("blocked source leaked into report")
	}
}

func TestWebFetch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	agent := NewWeb(testLogger(), WithWebBaseURL(srv.URL))
	report, err := agent.Fetch(context.Background(), evidence.Query{Drug: "obscuredrug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "No relevant web intelligence signals were found.") {
		t.Errorf("report = %q", report)
	}
}
