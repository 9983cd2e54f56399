package evidence

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the evidence dispatcher.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	AgentFetches  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers dispatcher metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "novus",
			Subsystem: "evidence",
			Name:      "cache_hits_total",
			Help:      "Evidence bundle lookups served from the session cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "novus",
			Subsystem: "evidence",
			Name:      "cache_misses_total",
			Help:      "Evidence bundle lookups that required an external fetch.",
		}),
		AgentFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "novus",
			Subsystem: "evidence",
			Name:      "agent_fetches_total",
			Help:      "External evidence agent calls.",
		}, []string{"agent", "status"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "novus",
			Subsystem: "evidence",
			Name:      "agent_fetch_duration_seconds",
			Help:      "External evidence agent call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
		}, []string{"agent"}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.AgentFetches,
		m.FetchDuration,
	)

	return m
}
