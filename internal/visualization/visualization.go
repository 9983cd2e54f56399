// Package visualization extracts chartable data from the market and clinical
// evidence sections: a market-size timeline with CAGR confidence bands, a
// patient-population split, and per-phase trial counts. Extraction is
// best-effort; text with nothing chartable yields no payload, never an error.
package visualization

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const forecastYear = 2030

var (
	currentRe    = regexp.MustCompile(`(?i)current market size.*?\$?([\d.]+)`)
	forecastRe   = regexp.MustCompile(`(?i)forecast 2030 market size.*?\$?([\d.]+)`)
	cagrRe       = regexp.MustCompile(`(?i)cagr.*?([\d.]+)`)
	populationRe = regexp.MustCompile(`(?i)patient population.*?([\d.]+)`)
	treatedRe    = regexp.MustCompile(`(?i)treated population.*?([\d.]+)`)

	phaseRe = regexp.MustCompile(`(?i)PHASE\s*(\d)\s*[:\-]?\s*(\d+)`)
)

// noTrialMarkers identify clinical reports with nothing to chart.
var noTrialMarkers = []string{
	"no registered clinical trials",
	"no matching trials",
	"total matching trials : 0",
	"no clinical trial signals",
}

// TimelinePoint is one year of projected market size.
type TimelinePoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Bands bracket the base timeline with ±2% CAGR scenarios.
type Bands struct {
	Upper []TimelinePoint `json:"upper"`
	Lower []TimelinePoint `json:"lower"`
}

// PatientSplit breaks the patient population into treated and untreated.
type PatientSplit struct {
	TotalPopulationM     float64 `json:"total_population_m"`
	TreatedPopulationM   float64 `json:"treated_population_m"`
	UntreatedPopulationM float64 `json:"untreated_population_m"`
	TreatedPercent       float64 `json:"treated_percent"`
}

// Market is the chartable market block.
type Market struct {
	CurrentUSDBn      float64         `json:"current_usd_bn"`
	Forecast2030USDBn float64         `json:"forecast_2030_usd_bn"`
	CAGRPercent       float64         `json:"cagr_percent"`
	Timeline          []TimelinePoint `json:"timeline"`
	Bands             Bands           `json:"bands"`
	PatientSplit      *PatientSplit   `json:"patient_split,omitempty"`
}

// Clinical is the chartable trial-phase block.
type Clinical struct {
	TotalTrials int            `json:"total_trials"`
	ByPhase     map[string]int `json:"by_phase"`
}

// Payload is the visualization attached to an analysis answer.
type Payload struct {
	Market   *Market   `json:"market,omitempty"`
	Clinical *Clinical `json:"clinical,omitempty"`
}

// Extract parses the market and clinical section texts. Either may be empty;
// if neither yields chartable data the result is nil.
func Extract(marketText, clinicalText string) *Payload {
	market := parseMarket(marketText)
	clinical := parseClinical(clinicalText)
	if market == nil && clinical == nil {
		return nil
	}
	return &Payload{Market: market, Clinical: clinical}
}

func parseMarket(text string) *Market {
	if text == "" || !strings.Contains(strings.ToLower(text), "market overview") {
		return nil
	}

	current := extractFloat(currentRe, text)
	if current == nil {
		return nil
	}

	forecast := extractFloat(forecastRe, text)
	cagr := 0.0
	if v := extractFloat(cagrRe, text); v != nil {
		cagr = *v
	}

	startYear := time.Now().Year()

	base := generateTimeline(*current, cagr, startYear, forecastYear, forecast)

	var upperTarget, lowerTarget *float64
	if forecast != nil {
		up, down := round2(*forecast*1.1), round2(*forecast*0.9)
		upperTarget, lowerTarget = &up, &down
	}
	lowerCAGR := cagr - 2
	if lowerCAGR < 0 {
		lowerCAGR = 0
	}

	m := &Market{
		CurrentUSDBn: *current,
		CAGRPercent:  cagr,
		Timeline:     base,
		Bands: Bands{
			Upper: generateTimeline(*current, cagr+2, startYear, forecastYear, upperTarget),
			Lower: generateTimeline(*current, lowerCAGR, startYear, forecastYear, lowerTarget),
		},
	}
	if forecast != nil {
		m.Forecast2030USDBn = *forecast
	} else {
		m.Forecast2030USDBn = base[len(base)-1].Value
	}

	population := extractFloat(populationRe, text)
	treatedPct := extractFloat(treatedRe, text)
	if population != nil && treatedPct != nil {
		treated := round2(*population * *treatedPct / 100)
		m.PatientSplit = &PatientSplit{
			TotalPopulationM:     *population,
			TreatedPopulationM:   treated,
			UntreatedPopulationM: round2(*population - treated),
			TreatedPercent:       *treatedPct,
		}
	}
	return m
}

// generateTimeline compounds the start value year over year; the forecast
// year is pinned to the stated target when one exists.
func generateTimeline(startValue, cagr float64, startYear, endYear int, target *float64) []TimelinePoint {
	var timeline []TimelinePoint
	current := startValue
	for year := startYear; year <= endYear; year++ {
		value := round2(current)
		if year == forecastYear && target != nil {
			value = *target
		}
		timeline = append(timeline, TimelinePoint{Year: year, Value: value})
		current *= 1 + cagr/100
	}
	return timeline
}

func parseClinical(text string) *Clinical {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	for _, marker := range noTrialMarkers {
		if strings.Contains(lower, marker) {
			return nil
		}
	}

	byPhase := map[string]int{
		"PHASE1": 0,
		"PHASE2": 0,
		"PHASE3": 0,
		"PHASE4": 0,
		"OTHER":  0,
	}
	for _, line := range strings.Split(text, "\n") {
		m := phaseRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		count, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		phase := "PHASE" + m[1]
		if _, known := byPhase[phase]; known {
			byPhase[phase] = count
		} else {
			byPhase["OTHER"] += count
		}
	}

	total := 0
	for _, c := range byPhase {
		total += c
	}
	if total == 0 {
		return nil
	}
	return &Clinical{TotalTrials: total, ByPhase: byPhase}
}

func extractFloat(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Trim(m[1], "."), 64)
	if err != nil {
		return nil
	}
	v = round2(v)
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
