package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/novusai/novus/internal/evidence"
)

const clinicalTrialsBaseURL = "https://clinicaltrials.gov/api/v2/studies"

// phaseWeights ranks trials by maturity. Late-phase activity is the strongest
// repurposing signal.
var phaseWeights = map[string]float64{
	"PHASE4":       5,
	"PHASE3":       4,
	"PHASE2":       3,
	"PHASE1":       2,
	"EARLY_PHASE1": 1.5,
}

// Clinical queries the ClinicalTrials.gov v2 API and reports registered trial
// signals: phase distribution, recruiting counts, and the top trials by score.
type Clinical struct {
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
	maxResults int
}

var _ evidence.Agent = (*Clinical)(nil)

// ClinicalOption customizes a Clinical agent.
type ClinicalOption func(*Clinical)

// WithClinicalBaseURL overrides the API root, used for tests.
func WithClinicalBaseURL(u string) ClinicalOption {
	return func(c *Clinical) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithClinicalHTTPClient overrides the HTTP client.
func WithClinicalHTTPClient(hc *http.Client) ClinicalOption {
	return func(c *Clinical) { c.client = hc }
}

// NewClinical creates the clinical trials agent.
func NewClinical(logger *slog.Logger, opts ...ClinicalOption) *Clinical {
	c := &Clinical{
		baseURL:    clinicalTrialsBaseURL,
		client:     defaultHTTPClient(),
		logger:     logger,
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clinical) Name() string { return evidence.AgentClinical }

type trialHit struct {
	NCTID          string
	Title          string
	Phase          string
	Status         string
	Sponsor        string
	LocationsCount int
	StartYear      int
	Score          float64
}

// Fetch searches per condition ("drug AND condition"), falls back to drug- or
// condition-only queries, deduplicates by NCT id, and renders the report. The
// phase distribution lines are machine-readable ("PHASE2 : 4") so the
// visualization extractor can chart them.
func (c *Clinical) Fetch(ctx context.Context, q evidence.Query) (string, error) {
	conditions := cleanConditions(q.Conditions)
	mode := resolveMode(q.Drug, conditions)
	if mode == modeNone {
		return "CLINICAL TRIAL SIGNALS\n\nNo drug or condition provided.\n", nil
	}

	pool := map[string]trialHit{}
	switch mode {
	case modeDrugAndCondition:
		for _, cond := range conditions {
			hits, err := c.search(ctx, q.Drug+" AND "+cond, c.maxResults*3)
			if err != nil {
				return "", err
			}
			for _, t := range hits {
				pool[t.NCTID] = t
			}
		}
	case modeDrugOnly:
		hits, err := c.search(ctx, q.Drug, c.maxResults*5)
		if err != nil {
			return "", err
		}
		for _, t := range hits {
			pool[t.NCTID] = t
		}
	case modeConditionOnly:
		for _, cond := range conditions {
			hits, err := c.search(ctx, cond, c.maxResults*5)
			if err != nil {
				return "", err
			}
			for _, t := range hits {
				pool[t.NCTID] = t
			}
		}
	}

	if len(pool) == 0 {
		return fmt.Sprintf(
			"CLINICAL TRIAL SIGNALS\nDrug      : %s\nConditions: %s\n\n"+
				"No registered clinical trials found.\n"+
				"This suggests a lack of formal clinical investigation.\n",
			q.Drug, joinOrNA(conditions),
		), nil
	}

	trials := make([]trialHit, 0, len(pool))
	for _, t := range pool {
		t.Score = scoreTrial(t)
		trials = append(trials, t)
	}
	sort.Slice(trials, func(i, j int) bool {
		if trials[i].Score != trials[j].Score {
			return trials[i].Score > trials[j].Score
		}
		return trials[i].NCTID < trials[j].NCTID
	})
	if len(trials) > c.maxResults {
		trials = trials[:c.maxResults]
	}

	return renderClinicalReport(q.Drug, conditions, trials), nil
}

func scoreTrial(t trialHit) float64 {
	score, ok := phaseWeights[strings.ToUpper(t.Phase)]
	if !ok {
		score = 1
	}
	if strings.Contains(strings.ToLower(t.Status), "recruit") {
		score += 2
	}
	if t.StartYear > 0 {
		age := float64(time.Now().Year() - t.StartYear)
		if bonus := 3 - age*0.3; bonus > 0 {
			score += bonus
		}
	}
	locBonus := float64(t.LocationsCount) / 10
	if locBonus > 2 {
		locBonus = 2
	}
	return score + locBonus
}

func renderClinicalReport(drug string, conditions []string, trials []trialHit) string {
	phaseDist := map[string]int{}
	recruiting := 0
	latestYear := 0
	for _, t := range trials {
		phase := t.Phase
		if phase == "" {
			phase = "UNKNOWN"
		}
		phaseDist[phase]++
		if strings.Contains(strings.ToLower(t.Status), "recruit") {
			recruiting++
		}
		if t.StartYear > latestYear {
			latestYear = t.StartYear
		}
	}

	phases := make([]string, 0, len(phaseDist))
	for p := range phaseDist {
		phases = append(phases, p)
	}
	sort.Strings(phases)

	var sb strings.Builder
	sb.WriteString("CLINICAL TRIAL SIGNALS\n")
	fmt.Fprintf(&sb, "Drug      : %s\n", drug)
	fmt.Fprintf(&sb, "Conditions: %s\n\n", joinOrNA(conditions))
	fmt.Fprintf(&sb, "Total matching trials      : %d\n", len(trials))
	fmt.Fprintf(&sb, "Recruiting trials          : %d\n", recruiting)
	latest := "N/A"
	if latestYear > 0 {
		latest = strconv.Itoa(latestYear)
	}
	fmt.Fprintf(&sb, "Latest trial start year    : %s\n", latest)
	sb.WriteString("Phase distribution:\n")
	for _, p := range phases {
		fmt.Fprintf(&sb, "  - %s : %d\n", p, phaseDist[p])
	}

	sb.WriteString("\nTOP CLINICAL TRIALS (by score)\n\n")
	for i, t := range trials {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.Title)
		fmt.Fprintf(&sb, "   Phase    : %s\n", orNA(t.Phase))
		fmt.Fprintf(&sb, "   Status   : %s\n", t.Status)
		fmt.Fprintf(&sb, "   Sponsor  : %s\n", t.Sponsor)
		fmt.Fprintf(&sb, "   NCT ID   : %s\n", t.NCTID)
		fmt.Fprintf(&sb, "   URL      : https://clinicaltrials.gov/study/%s\n\n", t.NCTID)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

type ctgovResponse struct {
	Studies []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus   string `json:"overallStatus"`
				StartDateStruct struct {
					Date string `json:"date"`
				} `json:"startDateStruct"`
			} `json:"statusModule"`
			SponsorCollaboratorsModule struct {
				LeadSponsor struct {
					Name string `json:"name"`
				} `json:"leadSponsor"`
			} `json:"sponsorCollaboratorsModule"`
			DesignModule struct {
				Phases []string `json:"phases"`
			} `json:"designModule"`
			ContactsLocationsModule struct {
				Locations []json.RawMessage `json:"locations"`
			} `json:"contactsLocationsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

func (c *Clinical) search(ctx context.Context, term string, limit int) ([]trialHit, error) {
	params := url.Values{
		"query.term": {term},
		"pageSize":   {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.DebugContext(ctx, "clinicaltrials.gov query", slog.String("term", term))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clinicaltrials.gov request failed: %w", err)
	}
	defer resp.Body.Close()

	// 400 means the query term was unsearchable, not a service failure.
	if resp.StatusCode == http.StatusBadRequest {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clinicaltrials.gov returned status %d", resp.StatusCode)
	}

	var out ctgovResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding clinicaltrials.gov response: %w", err)
	}

	hits := make([]trialHit, 0, len(out.Studies))
	for _, s := range out.Studies {
		proto := s.ProtocolSection
		if proto.IdentificationModule.NCTID == "" {
			continue
		}
		phase := ""
		if len(proto.DesignModule.Phases) > 0 {
			phase = proto.DesignModule.Phases[0]
		}
		status := proto.StatusModule.OverallStatus
		if status == "" {
			status = "Unknown"
		}
		sponsor := proto.SponsorCollaboratorsModule.LeadSponsor.Name
		if sponsor == "" {
			sponsor = "Unknown"
		}
		hits = append(hits, trialHit{
			NCTID:          proto.IdentificationModule.NCTID,
			Title:          proto.IdentificationModule.BriefTitle,
			Phase:          phase,
			Status:         status,
			Sponsor:        sponsor,
			LocationsCount: len(proto.ContactsLocationsModule.Locations),
			StartYear:      parseStartYear(proto.StatusModule.StartDateStruct.Date),
		})
	}
	return hits, nil
}

// parseStartYear extracts the year from dates like "2023-05" or "2023".
func parseStartYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
