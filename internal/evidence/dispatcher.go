package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novusai/novus/internal/domain"
)

// Agent is a single evidence collaborator: it calls one external data source
// and renders a plain-text report for the given drug/condition query.
type Agent interface {
	Name() string
	Fetch(ctx context.Context, q Query) (string, error)
}

// Query is the input every evidence agent receives.
type Query struct {
	Drug       string
	Conditions []string
}

// intentAgents maps each intent to the agent group it consults.
var intentAgents = map[domain.Intent][]string{
	domain.IntentClinical:   {AgentClinical, AgentLiterature},
	domain.IntentCommercial: {AgentMarket, AgentPatents, AgentWeb},
	domain.IntentInternal:   {AgentInternal},
	domain.IntentFullOpportunity: {
		AgentClinical, AgentLiterature, AgentMarket,
		AgentPatents, AgentWeb, AgentInternal,
	},
}

// AgentsForIntent returns the agent names consulted for an intent,
// or nil for GENERAL (which never dispatches evidence).
func AgentsForIntent(intent domain.Intent) []string {
	return intentAgents[intent]
}

// Dispatcher resolves evidence bundles from the session cache or by fanning
// out to the registered agents. A missing agent or a failed fetch degrades to
// the FailurePlaceholder section; the dispatch itself never fails.
type Dispatcher struct {
	agents  map[string]Agent
	logger  *slog.Logger
	metrics *Metrics // nil = metrics disabled.

	// maxConcurrent bounds the per-bundle agent fan-out. External sources
	// are rate-limited, so unbounded parallelism would trade latency for
	// throttling errors.
	maxConcurrent int
}

// NewDispatcher creates a Dispatcher over the given agents.
func NewDispatcher(agents []Agent, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	byName := make(map[string]Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	return &Dispatcher{
		agents:        byName,
		logger:        logger,
		metrics:       metrics,
		maxConcurrent: 4,
	}
}

// GetOrFetch returns the evidence bundle for (drug, conditions, intent).
// On a cache hit no external call occurs and the stored bundle is returned
// as-is. On a miss the intent's agent group is fetched concurrently and the
// assembled bundle is stored write-once; failed agents contribute the
// placeholder section and the failure is never cached as a bundle on its own.
func (d *Dispatcher) GetOrFetch(ctx context.Context, cache *Cache, drug string, conditions []string, intent domain.Intent) (*Bundle, error) {
	names := AgentsForIntent(intent)
	if names == nil {
		return nil, fmt.Errorf("no evidence agents for intent %q", intent)
	}

	key := NewCacheKey(drug, conditions, intent)
	if b := cache.Get(key); b != nil {
		if d.metrics != nil {
			d.metrics.CacheHits.Inc()
		}
		d.logger.DebugContext(ctx, "evidence cache hit", slog.String("key", key.String()))
		return b, nil
	}
	if d.metrics != nil {
		d.metrics.CacheMisses.Inc()
	}

	d.logger.InfoContext(ctx, "evidence fetch started",
		slog.String("drug", drug),
		slog.String("intent", string(intent)),
		slog.Int("agents", len(names)),
	)

	bundle := d.fetchBundle(ctx, names, Query{Drug: drug, Conditions: conditions})
	if bundle.Degraded() {
		// A degraded bundle is served but not cached, so the next identical
		// query retries the failed agents instead of pinning the failure.
		d.logger.WarnContext(ctx, "evidence bundle degraded, not cached",
			slog.String("key", key.String()))
		return bundle, nil
	}
	cache.Put(key, bundle)
	return bundle, nil
}

// fetchBundle fans out to the named agents and assembles their sections in
// the group's canonical order regardless of completion order.
func (d *Dispatcher) fetchBundle(ctx context.Context, names []string, q Query) *Bundle {
	results := make([]string, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)

	for i, name := range names {
		g.Go(func() error {
			text := d.fetchOne(gctx, name, q)
			mu.Lock()
			results[i] = text
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures degrade to placeholders.
	_ = g.Wait()

	bundle := NewBundle()
	for i, name := range names {
		bundle.Add(name, results[i])
	}
	return bundle
}

func (d *Dispatcher) fetchOne(ctx context.Context, name string, q Query) string {
	agent, ok := d.agents[name]
	if !ok {
		d.logger.WarnContext(ctx, "evidence agent not registered", slog.String("agent", name))
		return FailurePlaceholder
	}

	start := time.Now()
	text, err := agent.Fetch(ctx, q)
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.FetchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}

	if err != nil {
		if d.metrics != nil {
			d.metrics.AgentFetches.WithLabelValues(name, "error").Inc()
		}
		d.logger.WarnContext(ctx, "evidence agent failed",
			slog.String("agent", name),
			slog.String("drug", q.Drug),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return FailurePlaceholder
	}

	if d.metrics != nil {
		d.metrics.AgentFetches.WithLabelValues(name, "ok").Inc()
	}
	d.logger.DebugContext(ctx, "evidence agent completed",
		slog.String("agent", name),
		slog.Duration("duration", elapsed),
	)
	return text
}
