package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the turn pipeline. All metrics use
// the novus_turns_ namespace.
type Metrics struct {
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers turn metrics on the given registry.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "novus",
			Subsystem: "turns",
			Name:      "total",
			Help:      "Total turns by result type.",
		}, []string{"type"}),

		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "novus",
			Subsystem: "turns",
			Name:      "duration_seconds",
			Help:      "End-to-end turn duration in seconds by result type.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"type"}),
	}

	reg.MustRegister(m.TurnsTotal, m.TurnDuration)
	return m
}

func (m *Metrics) observeTurn(resultType string, d time.Duration) {
	m.TurnsTotal.WithLabelValues(resultType).Inc()
	m.TurnDuration.WithLabelValues(resultType).Observe(d.Seconds())
}
