// Package agents implements the evidence agents: each one queries a single
// external data source and renders a plain-text report for a drug/condition
// query. The reports are consumed verbatim by the synthesis prompt, so every
// agent writes for a language model, not for a terminal.
package agents

import (
	"net/http"
	"strings"
	"time"
)

const userAgent = "NovusAI/1.0 (contact: research@novusai.local)"

const defaultTimeout = 15 * time.Second

// queryMode names how a query binds drug and conditions. Each agent reports
// its mode so the synthesis model can judge how specific the evidence is.
type queryMode string

const (
	modeDrugAndCondition queryMode = "DRUG_AND_CONDITION"
	modeDrugOnly         queryMode = "DRUG_ONLY"
	modeConditionOnly    queryMode = "CONDITION_ONLY"
	modeNone             queryMode = ""
)

func resolveMode(drug string, conditions []string) queryMode {
	switch {
	case drug != "" && len(conditions) > 0:
		return modeDrugAndCondition
	case drug != "":
		return modeDrugOnly
	case len(conditions) > 0:
		return modeConditionOnly
	default:
		return modeNone
	}
}

// cleanConditions drops blank entries and trims the rest.
func cleanConditions(conditions []string) []string {
	out := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func joinOrNA(items []string) string {
	if len(items) == 0 {
		return "N/A"
	}
	return strings.Join(items, ", ")
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
