// Package synonyms expands a disease or condition name into a small set of
// biomedical synonyms using the EBI Ontology Lookup Service (OLS4). The
// expanded set widens downstream evidence searches: "nash" also matches
// trials registered under "nonalcoholic steatohepatitis".
package synonyms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://www.ebi.ac.uk/ols4/api"
	defaultTimeout = 10 * time.Second

	// maxRawSynonyms bounds how many OLS synonyms are considered per term.
	maxRawSynonyms = 20
	// maxExpanded bounds the result to [base, syn1, syn2].
	maxExpanded = 2
)

// allowedOntologies restricts the OLS search to curated disease ontologies.
var allowedOntologies = []string{"mondo", "doid", "mesh"}

var (
	parenRe     = regexp.MustCompile(`\s*\([^)]*\)`)
	splitRe     = regexp.MustCompile(`\s*[-:/,]\s*`)
	spaceRe     = regexp.MustCompile(`\s+`)
	acronymRe   = regexp.MustCompile(`^[A-Z]{3,6}$`)
	hasLetterRe = regexp.MustCompile(`[a-z]`)
)

// Expander resolves condition synonyms. Implementations must degrade to the
// bare input on any failure: synonym expansion is an enrichment, never a
// prerequisite.
type Expander interface {
	Expand(ctx context.Context, condition string) []string
}

// OLSExpander queries the EBI OLS4 REST API.
type OLSExpander struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ Expander = (*OLSExpander)(nil)

// Option customizes an OLSExpander.
type Option func(*OLSExpander)

// WithBaseURL overrides the OLS API root, used for tests.
func WithBaseURL(u string) Option {
	return func(e *OLSExpander) { e.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *OLSExpander) { e.client = c }
}

// NewOLSExpander creates an expander against the public EBI OLS4 endpoint.
func NewOLSExpander(logger *slog.Logger, opts ...Option) *OLSExpander {
	e := &OLSExpander{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns [base, synonym1, synonym2] for the condition, where base is
// the normalized input. Any lookup failure, empty search result, or junk-only
// synonym list degrades to [base] alone.
func (e *OLSExpander) Expand(ctx context.Context, condition string) []string {
	base := Normalize(condition)
	if base == "" {
		return nil
	}

	doc, err := e.search(ctx, base)
	if err != nil {
		e.logger.WarnContext(ctx, "synonym search failed, using base term",
			slog.String("condition", base),
			slog.String("error", err.Error()),
		)
		return []string{base}
	}
	if doc == nil || doc.IRI == "" || doc.Ontology == "" {
		return []string{base}
	}

	raw, err := e.fetchSynonyms(ctx, doc.Ontology, doc.IRI)
	if err != nil {
		e.logger.WarnContext(ctx, "synonym term fetch failed, using base term",
			slog.String("condition", base),
			slog.String("error", err.Error()),
		)
		return []string{base}
	}

	expanded := selectSynonyms(base, raw)
	e.logger.DebugContext(ctx, "condition synonyms expanded",
		slog.String("condition", base),
		slog.Any("terms", expanded),
	)
	return expanded
}

type searchDoc struct {
	IRI      string `json:"iri"`
	Ontology string `json:"ontology_name"`
}

type searchResponse struct {
	Response struct {
		Docs []searchDoc `json:"docs"`
	} `json:"response"`
}

func (e *OLSExpander) search(ctx context.Context, term string) (*searchDoc, error) {
	q := url.Values{
		"q":        {term},
		"ontology": {strings.Join(allowedOntologies, ",")},
		"rows":     {"1"},
	}
	var out searchResponse
	if err := e.getJSON(ctx, e.baseURL+"/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out.Response.Docs) == 0 {
		return nil, nil
	}
	return &out.Response.Docs[0], nil
}

type termsResponse struct {
	Embedded struct {
		Terms []struct {
			Synonyms []string `json:"synonyms"`
		} `json:"terms"`
	} `json:"_embedded"`
}

func (e *OLSExpander) fetchSynonyms(ctx context.Context, ontology, iri string) ([]string, error) {
	q := url.Values{"iri": {iri}}
	var out termsResponse
	endpoint := fmt.Sprintf("%s/ontologies/%s/terms?%s", e.baseURL, url.PathEscape(ontology), q.Encode())
	if err := e.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	if len(out.Embedded.Terms) == 0 {
		return nil, nil
	}
	return out.Embedded.Terms[0].Synonyms, nil
}

func (e *OLSExpander) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Normalize canonicalizes a synonym label: lowercase, parentheticals removed,
// composite labels like "nash - nonalcoholic steatohepatitis" split with the
// longest fragment kept, whitespace collapsed.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = parenRe.ReplaceAllString(text, "")

	longest := ""
	for _, part := range splitRe.Split(text, -1) {
		if len(part) > len(longest) {
			longest = part
		}
	}

	return strings.TrimSpace(spaceRe.ReplaceAllString(longest, " "))
}

// extractAcronyms collects canonical medical acronyms (MASH, COPD, ALS) from
// the raw labels before normalization lower-cases them away.
func extractAcronyms(raw []string) map[string]struct{} {
	acronyms := make(map[string]struct{})
	for _, s := range raw {
		if acronymRe.MatchString(s) {
			acronyms[strings.ToLower(s)] = struct{}{}
		}
	}
	return acronyms
}

// isValidDiseaseName accepts canonical acronyms and full-form disease names,
// rejecting numeric junk and truncated definition fragments.
func isValidDiseaseName(text string, acronyms map[string]struct{}) bool {
	if !hasLetterRe.MatchString(text) {
		return false
	}
	for _, badEnd := range []string{" in", " of", " for", " with"} {
		if strings.HasSuffix(text, badEnd) {
			return false
		}
	}
	if _, ok := acronyms[text]; ok {
		return true
	}
	return len(text) >= 8
}

// selectSynonyms normalizes, validates, and deduplicates the raw OLS synonym
// labels, returning [base, syn1, syn2] with the base always first.
func selectSynonyms(base string, raw []string) []string {
	acronyms := extractAcronyms(raw)

	if len(raw) > maxRawSynonyms {
		raw = raw[:maxRawSynonyms]
	}

	seen := map[string]struct{}{base: {}}
	out := []string{base}
	for _, s := range raw {
		if len(out) > maxExpanded {
			break
		}
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		if !isValidDiseaseName(norm, acronyms) {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
