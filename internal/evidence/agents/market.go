package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.

	"github.com/novusai/novus/internal/evidence"
)

// marketSnapshot is one row of curated market intelligence.
type marketSnapshot struct {
	DrugName                 string
	Condition                string
	MarketSizeUSDBn          float64
	ForecastSizeUSDBn2030    float64
	CAGRPercent              float64
	PatientPopulationM       float64
	TreatedPopulationPercent float64
	Competitors              int
	BrandedGenericMix        string
	CompetitorClasses        []string
	CommercialSignals        []string
	Risks                    []string
}

// Market reads market intelligence snapshots from the analytics database.
// Rows are matched on normalized drug/condition names; a drug+condition pair
// match is preferred over drug-only or condition-only coverage.
type Market struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ evidence.Agent = (*Market)(nil)

// NewMarket creates the market agent over an open analytics database handle.
func NewMarket(db *sql.DB, logger *slog.Logger) *Market {
	return &Market{db: db, logger: logger}
}

func (m *Market) Name() string { return evidence.AgentMarket }

var marketNormRe = regexp.MustCompile(`[^a-z0-9\s]`)

// normalizeMarketTerm canonicalizes lookup terms the same way the snapshot
// loader normalizes the stored names.
func normalizeMarketTerm(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(text)
	text = marketNormRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Fetch renders market signal blocks for the query. The overview lines keep a
// fixed label format ("Current market size (USD bn)") that the visualization
// extractor pattern-matches.
func (m *Market) Fetch(ctx context.Context, q evidence.Query) (string, error) {
	conditions := cleanConditions(q.Conditions)
	mode := resolveMode(q.Drug, conditions)
	if mode == modeNone {
		return "MARKET SIGNALS\n\nNo drug or condition provided.\n", nil
	}

	var blocks []string
	switch mode {
	case modeDrugAndCondition:
		for _, cond := range conditions {
			snap, err := m.lookupPair(ctx, q.Drug, cond)
			if err != nil {
				return "", err
			}
			if snap != nil {
				blocks = append(blocks, renderMarketBlock(mode, q.Drug, cond, snap))
			}
		}
	case modeDrugOnly:
		snap, err := m.lookupDrug(ctx, q.Drug)
		if err != nil {
			return "", err
		}
		if snap != nil {
			blocks = append(blocks, renderMarketBlock(mode, q.Drug, "", snap))
		}
	case modeConditionOnly:
		for _, cond := range conditions {
			snap, err := m.lookupCondition(ctx, cond)
			if err != nil {
				return "", err
			}
			if snap != nil {
				blocks = append(blocks, renderMarketBlock(mode, "", cond, snap))
			}
		}
	}

	if len(blocks) == 0 {
		return fmt.Sprintf(
			"MARKET SIGNALS\n\nQuery mode : %s\nNo commercial market coverage found.\n",
			mode,
		), nil
	}
	return strings.Join(blocks, "\n\n"+strings.Repeat("-", 100)+"\n\n"), nil
}

const marketColumns = `drug_name, condition, market_size_usd_bn, forecast_size_usd_bn_2030,
	cagr_percent, patient_population_m, treated_population_percent,
	competitors, branded_generic_mix, competitor_classes, commercial_signals, risks`

func (m *Market) lookupPair(ctx context.Context, drug, condition string) (*marketSnapshot, error) {
	return m.queryOne(ctx,
		`SELECT `+marketColumns+` FROM market_snapshots
		 WHERE drug_name = $1 AND condition = $2 LIMIT 1`,
		normalizeMarketTerm(drug), normalizeMarketTerm(condition))
}

func (m *Market) lookupDrug(ctx context.Context, drug string) (*marketSnapshot, error) {
	return m.queryOne(ctx,
		`SELECT `+marketColumns+` FROM market_snapshots
		 WHERE drug_name = $1 AND condition = '' LIMIT 1`,
		normalizeMarketTerm(drug))
}

func (m *Market) lookupCondition(ctx context.Context, condition string) (*marketSnapshot, error) {
	return m.queryOne(ctx,
		`SELECT `+marketColumns+` FROM market_snapshots
		 WHERE drug_name = '' AND condition = $1 LIMIT 1`,
		normalizeMarketTerm(condition))
}

func (m *Market) queryOne(ctx context.Context, query string, args ...any) (*marketSnapshot, error) {
	var (
		snap    marketSnapshot
		classes string
		signals string
		risks   string
	)
	row := m.db.QueryRowContext(ctx, query, args...)
	err := row.Scan(
		&snap.DrugName, &snap.Condition,
		&snap.MarketSizeUSDBn, &snap.ForecastSizeUSDBn2030, &snap.CAGRPercent,
		&snap.PatientPopulationM, &snap.TreatedPopulationPercent,
		&snap.Competitors, &snap.BrandedGenericMix,
		&classes, &signals, &risks,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying market snapshots: %w", err)
	}
	snap.CompetitorClasses = splitList(classes)
	snap.CommercialSignals = splitList(signals)
	snap.Risks = splitList(risks)
	return &snap, nil
}

// splitList decodes the semicolon-separated list columns.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func renderMarketBlock(mode queryMode, drug, condition string, m *marketSnapshot) string {
	var sb strings.Builder
	sb.WriteString("MARKET SIGNALS\n")
	fmt.Fprintf(&sb, "Query mode : %s\n", mode)
	if drug != "" {
		fmt.Fprintf(&sb, "Drug       : %s\n", drug)
	}
	if condition != "" {
		fmt.Fprintf(&sb, "Condition  : %s\n", condition)
	}
	sb.WriteString("\nMarket overview:\n")
	fmt.Fprintf(&sb, "  - Current market size (USD bn)      : %.2f\n", m.MarketSizeUSDBn)
	fmt.Fprintf(&sb, "  - Forecast 2030 market size (USD bn): %.2f\n", m.ForecastSizeUSDBn2030)
	fmt.Fprintf(&sb, "  - CAGR (%%)                          : %.2f\n", m.CAGRPercent)
	fmt.Fprintf(&sb, "  - Patient population (millions)     : %.2f\n", m.PatientPopulationM)
	fmt.Fprintf(&sb, "  - Treated population (%%)            : %.2f\n\n", m.TreatedPopulationPercent)

	sb.WriteString("Competitive landscape:\n")
	fmt.Fprintf(&sb, "  - Number of competitors : %d\n", m.Competitors)
	fmt.Fprintf(&sb, "  - Branded vs generic mix : %s\n", m.BrandedGenericMix)
	fmt.Fprintf(&sb, "  - Key competitor classes : %s\n", joinOrNA(m.CompetitorClasses))

	if len(m.CommercialSignals) > 0 {
		sb.WriteString("\nCommercial signals:\n")
		for _, s := range m.CommercialSignals {
			fmt.Fprintf(&sb, "  - %s\n", s)
		}
	}
	if len(m.Risks) > 0 {
		sb.WriteString("\nRisks:\n")
		for _, r := range m.Risks {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
