package agents

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/novusai/novus/internal/evidence"
)

const (
	eutilsBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	eutilsDB      = "pubmed"
	eutilsTool    = "novusai-literature-agent"

	// NCBI allows at most 3 requests/second without an API key.
	eutilsMinInterval = 350 * time.Millisecond
)

// Literature queries PubMed through the NCBI eutils API: esearch for PMIDs,
// esummary for titles and journals. Calls are throttled to the NCBI request
// budget; the throttle is shared across goroutines.
type Literature struct {
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
	email      string
	maxResults int

	mu       sync.Mutex
	lastCall time.Time
}

var _ evidence.Agent = (*Literature)(nil)

// LiteratureOption customizes a Literature agent.
type LiteratureOption func(*Literature)

// WithLiteratureBaseURL overrides the eutils root, used for tests.
func WithLiteratureBaseURL(u string) LiteratureOption {
	return func(l *Literature) { l.baseURL = strings.TrimSuffix(u, "/") }
}

// WithLiteratureHTTPClient overrides the HTTP client.
func WithLiteratureHTTPClient(hc *http.Client) LiteratureOption {
	return func(l *Literature) { l.client = hc }
}

// WithLiteratureEmail sets the contact email reported to NCBI.
func WithLiteratureEmail(email string) LiteratureOption {
	return func(l *Literature) { l.email = email }
}

// NewLiterature creates the PubMed literature agent.
func NewLiterature(logger *slog.Logger, opts ...LiteratureOption) *Literature {
	l := &Literature{
		baseURL:    eutilsBaseURL,
		client:     defaultHTTPClient(),
		logger:     logger,
		email:      "novusai@example.com",
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Literature) Name() string { return evidence.AgentLiterature }

// Fetch searches title/abstract-restricted PubMed and renders the top papers.
func (l *Literature) Fetch(ctx context.Context, q evidence.Query) (string, error) {
	conditions := cleanConditions(q.Conditions)
	mode := resolveMode(q.Drug, conditions)
	if mode == modeNone {
		return "LITERATURE EVIDENCE (PUBMED)\n\n" +
			"No drug or condition provided.\n" +
			"At least one of drug or condition must be specified.", nil
	}

	query := buildPubMedQuery(q.Drug, conditions, mode)
	pmids, err := l.searchIDs(ctx, query)
	if err != nil {
		return "", err
	}

	if len(pmids) == 0 {
		return fmt.Sprintf(
			"LITERATURE EVIDENCE (PUBMED)\n\n"+
				"Query mode : %s\nDrug       : %s\nConditions : %s\n\n"+
				"No relevant PubMed literature found where the query terms "+
				"appear in the title or abstract.\n"+
				"This suggests a lack of direct published evidence.",
			mode, orNA(q.Drug), joinOrNA(conditions),
		), nil
	}

	papers, err := l.fetchSummaries(ctx, pmids)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("LITERATURE EVIDENCE (PUBMED)\n\n")
	fmt.Fprintf(&sb, "Query mode : %s\n", mode)
	fmt.Fprintf(&sb, "Drug       : %s\n", orNA(q.Drug))
	fmt.Fprintf(&sb, "Conditions : %s\n\n", joinOrNA(conditions))
	fmt.Fprintf(&sb, "Total relevant papers : %d\n\n", len(papers))
	sb.WriteString("TOP PUBMED EVIDENCE\n\n")
	for i, p := range papers {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p.Title)
		fmt.Fprintf(&sb, "   Journal     : %s\n", orNA(p.Journal))
		year := "N/A"
		if p.Year > 0 {
			year = strconv.Itoa(p.Year)
		}
		fmt.Fprintf(&sb, "   Year        : %s\n", year)
		fmt.Fprintf(&sb, "   PMID        : %s\n", p.PMID)
		fmt.Fprintf(&sb, "   URL         : https://pubmed.ncbi.nlm.nih.gov/%s/\n\n", p.PMID)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// buildPubMedQuery restricts every term to title/abstract so matches reflect
// the paper's subject rather than incidental mentions.
func buildPubMedQuery(drug string, conditions []string, mode queryMode) string {
	quote := func(term string) string { return `"` + term + `"[tiab]` }

	condBlock := func() string {
		parts := make([]string, len(conditions))
		for i, c := range conditions {
			parts[i] = quote(c)
		}
		return strings.Join(parts, " OR ")
	}

	switch mode {
	case modeDrugOnly:
		return quote(drug)
	case modeConditionOnly:
		return condBlock()
	default:
		return quote(drug) + " AND (" + condBlock() + ")"
	}
}

func (l *Literature) throttle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wait := eutilsMinInterval - time.Since(l.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	l.lastCall = time.Now()
}

type esearchResult struct {
	IDs []string `xml:"IdList>Id"`
}

func (l *Literature) searchIDs(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"db":      {eutilsDB},
		"term":    {query},
		"retmax":  {strconv.Itoa(l.maxResults)},
		"retmode": {"xml"},
		"sort":    {"pub+date"},
		"tool":    {eutilsTool},
		"email":   {l.email},
	}
	body, err := l.get(ctx, l.baseURL+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var out esearchResult
	if err := xml.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding esearch response: %w", err)
	}
	return out.IDs, nil
}

type paperSummary struct {
	PMID    string
	Title   string
	Journal string
	Year    int
}

type esummaryResult struct {
	DocSums []struct {
		ID    string `xml:"Id"`
		Items []struct {
			Name  string `xml:"Name,attr"`
			Value string `xml:",chardata"`
		} `xml:"Item"`
	} `xml:"DocSum"`
}

func (l *Literature) fetchSummaries(ctx context.Context, pmids []string) ([]paperSummary, error) {
	params := url.Values{
		"db":      {eutilsDB},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
		"tool":    {eutilsTool},
		"email":   {l.email},
	}
	body, err := l.get(ctx, l.baseURL+"/esummary.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var out esummaryResult
	if err := xml.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding esummary response: %w", err)
	}

	papers := make([]paperSummary, 0, len(out.DocSums))
	for _, doc := range out.DocSums {
		if doc.ID == "" {
			continue
		}
		p := paperSummary{PMID: doc.ID}
		for _, item := range doc.Items {
			switch item.Name {
			case "Title":
				p.Title = item.Value
			case "FullJournalName":
				p.Journal = item.Value
			case "PubDate":
				p.Year = parsePubYear(item.Value)
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}

func (l *Literature) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	l.throttle()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eutils request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eutils returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parsePubYear finds the 4-digit year token in dates like "2024 Jan 15".
func parsePubYear(pubdate string) int {
	for _, token := range strings.Fields(pubdate) {
		if len(token) == 4 {
			if year, err := strconv.Atoi(token); err == nil {
				return year
			}
		}
	}
	return 0
}
