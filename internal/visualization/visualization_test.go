package visualization

import (
	"testing"
	"time"
)

const sampleMarketText = `MARKET SIGNALS
Query mode : DRUG_AND_CONDITION
Drug       : metformin
Condition  : nash

Market overview:
  - Current market size (USD bn)      : 2.50
  - Forecast 2030 market size (USD bn): 6.80
  - CAGR (%)                          : 12.40
  - Patient population (millions)     : 45.00
  - Treated population (%)            : 30.00`

const sampleClinicalText = `CLINICAL TRIAL SIGNALS
Total matching trials      : 7
Phase distribution:
  - PHASE1 : 1
  - PHASE2 : 4
  - PHASE3 : 2`

func TestExtract_MarketAndClinical(t *testing.T) {
	p := Extract(sampleMarketText, sampleClinicalText)
	if p == nil {
		t.Fatal("expected payload")
	}

	m := p.Market
	if m == nil {
		t.Fatal("expected market block")
	}
	if m.CurrentUSDBn != 2.5 || m.Forecast2030USDBn != 6.8 || m.CAGRPercent != 12.4 {
		t.Errorf("market figures = %+v", m)
	}

	startYear := time.Now().Year()
	if len(m.Timeline) != forecastYear-startYear+1 {
		t.Errorf("timeline spans %d years, want %d", len(m.Timeline), forecastYear-startYear+1)
	}
	if first := m.Timeline[0]; first.Year != startYear || first.Value != 2.5 {
		t.Errorf("timeline start = %+v", first)
	}
	if last := m.Timeline[len(m.Timeline)-1]; last.Year != forecastYear || last.Value != 6.8 {
		t.Errorf("timeline must pin the forecast year to the stated target, got %+v", last)
	}
	if up := m.Bands.Upper[len(m.Bands.Upper)-1].Value; up != 7.48 {
		t.Errorf("upper band 2030 = %v, want 7.48", up)
	}
	if down := m.Bands.Lower[len(m.Bands.Lower)-1].Value; down != 6.12 {
		t.Errorf("lower band 2030 = %v, want 6.12", down)
	}

	if m.PatientSplit == nil {
		t.Fatal("expected patient split")
	}
	if m.PatientSplit.TreatedPopulationM != 13.5 || m.PatientSplit.UntreatedPopulationM != 31.5 {
		t.Errorf("patient split = %+v", m.PatientSplit)
	}

	c := p.Clinical
	if c == nil {
		t.Fatal("expected clinical block")
	}
	if c.TotalTrials != 7 {
		t.Errorf("total trials = %d, want 7", c.TotalTrials)
	}
	if c.ByPhase["PHASE2"] != 4 || c.ByPhase["PHASE3"] != 2 || c.ByPhase["PHASE1"] != 1 {
		t.Errorf("by_phase = %v", c.ByPhase)
	}
}

func TestExtract_NothingChartable(t *testing.T) {
	if p := Extract("", ""); p != nil {
		t.Errorf("empty inputs must yield nil, got %+v", p)
	}
	if p := Extract("some prose with no market section", "no registered clinical trials found"); p != nil {
		t.Errorf("unchartable inputs must yield nil, got %+v", p)
	}
}

func TestExtract_MarketOnly(t *testing.T) {
	p := Extract(sampleMarketText, "")
	if p == nil || p.Market == nil {
		t.Fatal("expected market-only payload")
	}
	if p.Clinical != nil {
		t.Errorf("clinical = %+v, want nil", p.Clinical)
	}
}

func TestParseMarket_RequiresCurrentSize(t *testing.T) {
	text := "Market overview:\n  - CAGR (%) : 10"
	if m := parseMarket(text); m != nil {
		t.Errorf("market without current size must be nil, got %+v", m)
	}
}

func TestParseClinical_UnknownPhaseCountsAsOther(t *testing.T) {
	c := parseClinical("Phase distribution:\n  - PHASE5 : 3\n  - PHASE2 : 1")
	if c == nil {
		t.Fatal("expected clinical block")
	}
	if c.ByPhase["OTHER"] != 3 || c.ByPhase["PHASE2"] != 1 {
		t.Errorf("by_phase = %v", c.ByPhase)
	}
}
