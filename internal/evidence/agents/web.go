package agents

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/novusai/novus/internal/evidence"
)

const duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"

// webRequestDelay spaces out search queries so the endpoint does not throttle
// the whole fan-out.
const webRequestDelay = time.Second

// domainSignalMap classifies source domains by type.
var domainSignalMap = map[string]string{
	// Regulatory / guidelines
	"fda.gov":       "REGULATORY",
	"ema.europa.eu": "REGULATORY",
	"who.int":       "REGULATORY",

	// Scholarly / journals
	"nih.gov":                 "SCHOLARLY",
	"ncbi.nlm.nih.gov":        "SCHOLARLY",
	"pubmed.ncbi.nlm.nih.gov": "SCHOLARLY",
	"nejm.org":                "SCHOLARLY",
	"thelancet.com":           "SCHOLARLY",
	"bmj.com":                 "SCHOLARLY",
	"nature.com":              "SCHOLARLY",
	"science.org":             "SCHOLARLY",
	"sciencedirect.com":       "SCHOLARLY",
	"wiley.com":               "SCHOLARLY",
	"springer.com":            "SCHOLARLY",
	"frontiersin.org":         "SCHOLARLY",

	// Preprints / pipeline
	"clinicaltrials.gov": "PIPELINE",
	"medrxiv.org":        "PIPELINE",
	"biorxiv.org":        "PIPELINE",

	// Industry / news
	"reuters.com":       "NEWS",
	"statnews.com":      "NEWS",
	"endpts.com":        "NEWS",
	"fiercepharma.com":  "NEWS",
	"fiercebiotech.com": "NEWS",
	"biopharmadive.com": "NEWS",
	"pharmaphorum.com":  "NEWS",
}

// blockedKeywords filter out community and social sources that carry no
// commercial signal.
var blockedKeywords = []string{
	"forum", "reddit", "facebook", "twitter", "x.com",
	"patient", "donation", "support", "blog", "community",
}

// Web searches the DuckDuckGo HTML endpoint for commercial and regulatory
// chatter about a drug/condition pair, classifying results by source domain.
type Web struct {
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
	maxResults int
	delay      time.Duration
}

var _ evidence.Agent = (*Web)(nil)

// WebOption customizes a Web agent.
type WebOption func(*Web)

// WithWebBaseURL overrides the search endpoint, used for tests.
func WithWebBaseURL(u string) WebOption {
	return func(w *Web) { w.baseURL = u; w.delay = 0 }
}

// WithWebHTTPClient overrides the HTTP client.
func WithWebHTTPClient(hc *http.Client) WebOption {
	return func(w *Web) { w.client = hc }
}

// NewWeb creates the web intelligence agent.
func NewWeb(logger *slog.Logger, opts ...WebOption) *Web {
	w := &Web{
		baseURL:    duckDuckGoHTMLURL,
		client:     defaultHTTPClient(),
		logger:     logger,
		maxResults: 5,
		delay:      webRequestDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Web) Name() string { return evidence.AgentWeb }

type webSignal struct {
	Title      string
	Snippet    string
	Domain     string
	URL        string
	SignalType string
	Confidence string
}

// Fetch runs query variants per drug/condition pairing and renders the
// deduplicated, classified signals.
func (w *Web) Fetch(ctx context.Context, q evidence.Query) (string, error) {
	conditions := cleanConditions(q.Conditions)
	mode := resolveMode(q.Drug, conditions)
	if mode == modeNone {
		return "WEB INTELLIGENCE SIGNALS\n\n" +
			"No drug or condition provided.\n" +
			"At least one of drug or condition must be specified.", nil
	}

	var pairs [][2]string
	switch mode {
	case modeDrugAndCondition:
		for _, cond := range conditions {
			pairs = append(pairs, [2]string{q.Drug, cond})
		}
	case modeDrugOnly:
		pairs = [][2]string{{q.Drug, ""}}
	case modeConditionOnly:
		for _, cond := range conditions {
			pairs = append(pairs, [2]string{"", cond})
		}
	}

	collected := map[string]webSignal{}
	order := []string{}
collect:
	for _, pair := range pairs {
		for _, query := range buildQueryVariants(pair[0], pair[1]) {
			if w.delay > 0 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(w.delay):
				}
			}

			results, err := w.search(ctx, query)
			if err != nil {
				return "", err
			}
			for _, s := range results {
				if _, dup := collected[s.URL]; dup {
					continue
				}
				collected[s.URL] = s
				order = append(order, s.URL)
				if len(collected) >= w.maxResults {
					break collect
				}
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("WEB INTELLIGENCE SIGNALS\n\n")
	fmt.Fprintf(&sb, "Drug       : %s\n", orNA(q.Drug))
	fmt.Fprintf(&sb, "Conditions : %s\n\n", joinOrNA(conditions))
	fmt.Fprintf(&sb, "Total signals found : %d\n\n", len(collected))

	if len(collected) == 0 {
		sb.WriteString("No relevant web intelligence signals were found.\n" +
			"Signals are non-clinical and absence does not imply lack of evidence.")
		return sb.String(), nil
	}

	for i, u := range order {
		s := collected[u]
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Title)
		fmt.Fprintf(&sb, "   Source     : %s\n", s.Domain)
		fmt.Fprintf(&sb, "   Type       : %s\n", s.SignalType)
		fmt.Fprintf(&sb, "   Confidence : %s\n", s.Confidence)
		fmt.Fprintf(&sb, "   URL        : %s\n\n", s.URL)
		sb.WriteString("   Snippet:\n")
		if s.Snippet != "" {
			sb.WriteString(s.Snippet)
		} else {
			sb.WriteString("   Snippet not available.")
		}
		sb.WriteString("\n\n" + strings.Repeat("-", 100) + "\n")
	}

	sb.WriteString("\nNOTE:\n" +
		"Web intelligence signals are non-validated, non-clinical, English-only, " +
		"and contextual. They must not be treated as evidence, only as a sign of interest.")
	return sb.String(), nil
}

// buildQueryVariants generates syntactic query variants, most specific first.
func buildQueryVariants(drug, condition string) []string {
	var variants []string
	switch {
	case drug != "" && condition != "":
		variants = append(variants,
			fmt.Sprintf("%q %q", drug, condition),
			drug+" "+condition,
		)
		if tokens := strings.Fields(condition); len(tokens) > 1 {
			variants = append(variants, drug+" "+tokens[len(tokens)-1])
		}
	case drug != "":
		variants = append(variants, fmt.Sprintf("%q", drug))
	case condition != "":
		variants = append(variants, fmt.Sprintf("%q", condition))
	}

	seen := map[string]struct{}{}
	out := variants[:0]
	for _, v := range variants {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (w *Web) search(ctx context.Context, query string) ([]webSignal, error) {
	params := url.Values{"q": {query}, "kl": {"wt-wt"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	w.logger.DebugContext(ctx, "web search query", slog.String("query", query))

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	var signals []webSignal
	for _, res := range parseResults(doc) {
		if res.URL == "" || isBlocked(res.URL) {
			continue
		}
		if !isEnglish(res.Title + " " + res.Snippet) {
			continue
		}
		domain := extractDomain(res.URL)
		signalType := classifySignal(domain)
		signals = append(signals, webSignal{
			Title:      res.Title,
			Snippet:    res.Snippet,
			Domain:     domain,
			URL:        res.URL,
			SignalType: signalType,
			Confidence: confidenceForType(signalType),
		})
	}
	return signals, nil
}

type rawResult struct {
	Title   string
	Snippet string
	URL     string
}

// parseResults walks the result markup: anchors classed result__a carry the
// title and link, elements classed result__snippet carry the snippet. Results
// are paired by their shared result container.
func parseResults(doc *html.Node) []rawResult {
	var results []rawResult
	for node := range doc.Descendants() {
		if node.Type != html.ElementNode || !hasClass(node, "result") {
			continue
		}
		var res rawResult
		for child := range node.Descendants() {
			if child.Type != html.ElementNode {
				continue
			}
			switch {
			case child.Data == "a" && hasClass(child, "result__a"):
				res.Title = strings.TrimSpace(textContent(child))
				res.URL = resolveResultURL(attr(child, "href"))
			case hasClass(child, "result__snippet"):
				res.Snippet = strings.TrimSpace(textContent(child))
			}
		}
		if res.Title != "" {
			results = append(results, res)
		}
	}
	return results
}

// resolveResultURL unwraps the redirect links ("//duckduckgo.com/l/?uddg=...")
// the HTML endpoint serves instead of direct URLs.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	if parsed.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for node := range n.Descendants() {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
	}
	return sb.String()
}

func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func isBlocked(rawURL string) bool {
	u := strings.ToLower(rawURL)
	for _, kw := range blockedKeywords {
		if strings.Contains(u, kw) {
			return true
		}
	}
	return false
}

// isEnglish is a cheap ASCII-ratio heuristic, good enough to drop obviously
// non-English results.
func isEnglish(text string) bool {
	if text == "" {
		return false
	}
	nonASCII := 0
	for _, r := range text {
		if r > 127 {
			nonASCII++
		}
	}
	return float64(nonASCII)/float64(len(text)) < 0.05
}

func classifySignal(domain string) string {
	// Match the most specific suffix so pubmed.ncbi.nlm.nih.gov classifies by
	// its own entry rather than nih.gov's.
	best := ""
	bestLen := 0
	for d, t := range domainSignalMap {
		if (domain == d || strings.HasSuffix(domain, "."+d)) && len(d) > bestLen {
			best = t
			bestLen = len(d)
		}
	}
	if best == "" {
		return "UNKNOWN"
	}
	return best
}

func confidenceForType(signalType string) string {
	switch signalType {
	case "REGULATORY", "SCHOLARLY":
		return "HIGH"
	case "PIPELINE":
		return "MEDIUM"
	default:
		return "LOW"
	}
}
