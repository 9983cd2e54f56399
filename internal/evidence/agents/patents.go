package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/novusai/novus/internal/evidence"
)

const patentsViewBaseURL = "https://search.patentsview.org/api/v1/patent/"

// Patents queries the PatentsView search API for granted patents whose title
// or abstract mentions the drug and condition, summarizing assignees and
// filing years. Patent activity around a repurposing pair signals commercial
// interest and potential freedom-to-operate constraints.
type Patents struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	logger     *slog.Logger
	maxResults int
}

var _ evidence.Agent = (*Patents)(nil)

// PatentsOption customizes a Patents agent.
type PatentsOption func(*Patents)

// WithPatentsBaseURL overrides the API root, used for tests.
func WithPatentsBaseURL(u string) PatentsOption {
	return func(p *Patents) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		p.baseURL = u
	}
}

// WithPatentsHTTPClient overrides the HTTP client.
func WithPatentsHTTPClient(hc *http.Client) PatentsOption {
	return func(p *Patents) { p.client = hc }
}

// NewPatents creates the patents agent. The API key may be empty; PatentsView
// then serves a reduced unauthenticated quota.
func NewPatents(apiKey string, logger *slog.Logger, opts ...PatentsOption) *Patents {
	p := &Patents{
		baseURL:    patentsViewBaseURL,
		apiKey:     apiKey,
		client:     defaultHTTPClient(),
		logger:     logger,
		maxResults: 7,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Patents) Name() string { return evidence.AgentPatents }

type patentHit struct {
	ID        string
	Title     string
	Date      string
	Assignees []string
}

// Fetch searches one query per drug/condition pairing, deduplicates by patent
// id, and renders the newest patents first.
func (p *Patents) Fetch(ctx context.Context, q evidence.Query) (string, error) {
	conditions := cleanConditions(q.Conditions)
	mode := resolveMode(q.Drug, conditions)
	if mode == modeNone {
		return "PATENT SIGNALS\n\nNo drug or condition provided.\n", nil
	}

	var queries []string
	switch mode {
	case modeDrugAndCondition:
		for _, cond := range conditions {
			queries = append(queries, q.Drug+" "+cond)
		}
	case modeDrugOnly:
		queries = []string{q.Drug}
	case modeConditionOnly:
		queries = conditions
	}

	pool := map[string]patentHit{}
	for _, text := range queries {
		hits, err := p.search(ctx, text)
		if err != nil {
			return "", err
		}
		for _, h := range hits {
			pool[h.ID] = h
		}
	}

	if len(pool) == 0 {
		return "NO PATENTS FOUND.", nil
	}

	hits := make([]patentHit, 0, len(pool))
	for _, h := range pool {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Date != hits[j].Date {
			return hits[i].Date > hits[j].Date
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > p.maxResults {
		hits = hits[:p.maxResults]
	}

	var sb strings.Builder
	sb.WriteString("TOP PATENTS (RANKED BY PUBLICATION DATE)\n")
	sb.WriteString(strings.Repeat("=", 80))
	for i, h := range hits {
		fmt.Fprintf(&sb, "\n\nRank #%d\n", i+1)
		fmt.Fprintf(&sb, "Patent ID : %s\n", h.ID)
		fmt.Fprintf(&sb, "Title     : %s\n", h.Title)
		fmt.Fprintf(&sb, "Published : %s\n", orNA(h.Date))
		fmt.Fprintf(&sb, "Assignees : %s", joinOrNA(h.Assignees))
	}
	return sb.String(), nil
}

type patentsViewRequest struct {
	Query  map[string]any `json:"q"`
	Fields []string       `json:"f"`
	Opts   map[string]any `json:"o"`
}

type patentsViewResponse struct {
	Patents []struct {
		PatentID    string `json:"patent_id"`
		PatentTitle string `json:"patent_title"`
		PatentDate  string `json:"patent_date"`
		Assignees   []struct {
			Organization string `json:"assignee_organization"`
		} `json:"assignees"`
	} `json:"patents"`
}

func (p *Patents) search(ctx context.Context, text string) ([]patentHit, error) {
	body, err := json.Marshal(patentsViewRequest{
		Query:  map[string]any{"_text_any": map[string]any{"patent_title": text}},
		Fields: []string{"patent_id", "patent_title", "patent_date", "assignees.assignee_organization"},
		Opts:   map[string]any{"size": p.maxResults * 3},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding patents query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}

	p.logger.DebugContext(ctx, "patentsview query", slog.String("text", text))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patentsview request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("patentsview returned status %d", resp.StatusCode)
	}

	var out patentsViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding patentsview response: %w", err)
	}

	hits := make([]patentHit, 0, len(out.Patents))
	for _, pat := range out.Patents {
		if pat.PatentID == "" {
			continue
		}
		hit := patentHit{ID: pat.PatentID, Title: pat.PatentTitle, Date: pat.PatentDate}
		for _, a := range pat.Assignees {
			if a.Organization != "" {
				hit.Assignees = append(hit.Assignees, a.Organization)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
