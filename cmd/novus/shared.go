package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/novusai/novus/internal/config"
	"github.com/novusai/novus/internal/conversation"
	"github.com/novusai/novus/internal/evidence"
	"github.com/novusai/novus/internal/evidence/agents"
	"github.com/novusai/novus/internal/interpreter"
	"github.com/novusai/novus/internal/llm"
	"github.com/novusai/novus/internal/llm/openai"
	"github.com/novusai/novus/internal/observability"
	"github.com/novusai/novus/internal/orchestrator"
	"github.com/novusai/novus/internal/storage"
	pgstore "github.com/novusai/novus/internal/storage/postgres"
	sqlitestore "github.com/novusai/novus/internal/storage/sqlite"
	"github.com/novusai/novus/internal/synonyms"
	"github.com/novusai/novus/internal/synthesis"
)

// SharedComponents holds all initialized subsystems the server and the
// one-shot query path require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger
	Store  storage.Store

	Obs         *observability.Observability
	LLMProvider llm.Provider
	Sessions    *conversation.InMemorySessionStore
	Engine      *orchestrator.Engine

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization for server mode.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})
	logger.Debug("observability initialized",
		slog.Bool("metrics", obs.Metrics != nil),
		slog.Bool("tracing", obs.Tracer != nil),
		slog.Bool("anomaly", obs.Anomaly != nil),
	)

	// LLM provider.
	llmProvider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	logger.Debug("llm provider initialized", slog.String("provider", llmProvider.Name()))

	if obs.Metrics != nil {
		llmProvider = observability.NewInstrumentedProvider(
			llmProvider, obs.Metrics, obs.Tracer, obs.Anomaly,
		)
	}
	sc.LLMProvider = llmProvider

	// Storage (in-memory default, SQLite or PostgreSQL when configured).
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	// Run migrations.
	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Condition synonym expander.
	var expander synonyms.Expander
	if cfg.Synonyms == nil || cfg.Synonyms.Enabled {
		var opts []synonyms.Option
		if cfg.Synonyms != nil && cfg.Synonyms.BaseURL != "" {
			opts = append(opts, synonyms.WithBaseURL(cfg.Synonyms.BaseURL))
		}
		expander = synonyms.NewOLSExpander(logger, opts...)
		logger.Debug("synonym expander initialized")
	}

	// Interpreter.
	interp := interpreter.New(llmProvider, expander, logger)

	// Evidence agents and dispatcher.
	evidenceAgents, err := buildAgents(cfg, sc, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing evidence agents: %w", err)
	}
	dispatcher := evidence.NewDispatcher(evidenceAgents, logger, evidence.NewMetrics(obs.Registry()))

	// Synthesizer.
	synthesizer := synthesis.New(llmProvider, logger)

	// Sessions and turn engine.
	sc.Sessions = conversation.NewInMemorySessionStore(logger)
	sc.Engine = orchestrator.NewEngine(
		sc.Sessions,
		interp,
		dispatcher,
		synthesizer,
		store.Turns(),
		orchestrator.NewMetrics(obs.Registry()),
		logger,
	)

	// Health checks.
	obs.Health.AddCheck("storage", store.Ping)

	return sc, nil
}

// initStore creates the storage backend from config. A nil storage section
// keeps turns in memory only.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == nil {
		return storage.NewMemoryStore(), nil
	}

	switch driver := cfg.Storage.StorageDriver(); driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	dbPath := ""
	journalMode := "wal"

	if cfg.Storage.SQLite != nil {
		dbPath = cfg.Storage.SQLite.Path
		if cfg.Storage.SQLite.JournalMode != "" {
			journalMode = cfg.Storage.SQLite.JournalMode
		}
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default database path: %w", err)
		}
		dbPath = filepath.Join(home, ".novus", "data", "novus.db")
	}

	return sqlitestore.Open(sqlitestore.Config{
		Path:        dbPath,
		JournalMode: journalMode,
	}, logger)
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	pg := cfg.Storage.Postgres
	if pg == nil || pg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or NOVUS_DB_DSN)")
	}

	pgCfg := pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}

	store, err := pgstore.Open(pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return store, nil
}

// buildAgents assembles the evidence agent set. The clinical, literature,
// patent, and web agents run against public APIs and are always on; the
// market and internal-knowledge agents need the analytics database.
func buildAgents(cfg *config.Config, sc *SharedComponents, logger *slog.Logger) ([]evidence.Agent, error) {
	var litOpts []agents.LiteratureOption
	if cfg.Agents.LiteratureEmail != "" {
		litOpts = append(litOpts, agents.WithLiteratureEmail(cfg.Agents.LiteratureEmail))
	}

	patentsKey := ""
	if cfg.Agents.Patents != nil {
		patentsKey = cfg.Agents.Patents.APIKey
	}

	list := []evidence.Agent{
		agents.NewClinical(logger),
		agents.NewLiterature(logger, litOpts...),
		agents.NewPatents(patentsKey, logger),
		agents.NewWeb(logger),
	}

	if cfg.Agents.Analytics != nil && cfg.Agents.Analytics.DSN != "" {
		db, err := sql.Open("pgx", cfg.Agents.Analytics.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening analytics database: %w", err)
		}
		sc.addCleanup(func() {
			if err := db.Close(); err != nil {
				logger.Error("closing analytics database", slog.String("error", err.Error()))
			}
		})

		list = append(list, agents.NewMarket(db, logger), agents.NewInternal(db, logger))
		logger.Debug("analytics-backed agents enabled")
	}

	return list, nil
}

// newLLMProvider creates the completion provider chain. Groq is primary when
// configured; OpenAI serves as the fallback or as the sole provider.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	var providers []llm.Provider

	if g := cfg.Providers.Groq; g != nil {
		providers = append(providers, openai.NewClient(
			g.APIKey,
			g.ModelName(),
			logger,
			openai.WithBaseURL(g.API()),
			openai.WithName("groq"),
		))
	}
	if o := cfg.Providers.OpenAI; o != nil {
		var opts []openai.Option
		if o.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(o.BaseURL))
		}
		providers = append(providers, openai.NewClient(o.APIKey, o.ModelName(), logger, opts...))
	}

	switch len(providers) {
	case 0:
		return nil, fmt.Errorf("no completion provider configured")
	case 1:
		return providers[0], nil
	default:
		return llm.NewFallbackProvider(providers, logger), nil
	}
}
