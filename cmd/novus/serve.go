package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/novusai/novus/internal/config"
	"github.com/novusai/novus/internal/gateway/httpapi"
	"github.com/novusai/novus/internal/ratelimit"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `novus --config path` and `novus serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", "", "path to config file (default: environment only)")
		cmd.Flags().StringVar(&serveAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts the Novus HTTP API server.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger.Info("starting novus server", slog.String("addr", cfg.Server.ListenAddr()))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Idle session eviction on a cron schedule.
	sweeper := cron.New()
	idleTTL := cfg.Sessions.IdleTTL()
	if _, err := sweeper.AddFunc(cfg.Sessions.SweepCron(), func() {
		if n := sc.Sessions.EvictIdle(idleTTL); n > 0 {
			logger.Info("idle sessions evicted", slog.Int("count", n))
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()
	logger.Debug("session sweeper started",
		slog.String("schedule", cfg.Sessions.SweepCron()),
		slog.String("idle_ttl", idleTTL.String()),
	)

	gw := buildGateway(cfg, sc)

	// Start the gateway and wait for a signal or server error.
	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// loadConfig loads the config file when one is given, otherwise builds the
// config from environment variables alone.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("NOVUS_CONFIG", serveConfigPath)
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// buildGateway creates the HTTP API gateway from config and shared components.
func buildGateway(cfg *config.Config, sc *SharedComponents) *httpapi.Gateway {
	var limiter *ratelimit.Limiter
	if cfg.RateLimit != nil {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.Burst,
		})
	}

	httpCfg := httpapi.Config{
		ListenAddr:    cfg.Server.ListenAddr(),
		EnableDocs:    cfg.Server.EnableDocs,
		APIKeys:       parseAPIKeys(cfg.Server.APIKeys),
		HealthChecker: sc.Obs.Health,
		Metrics:       sc.Obs.Metrics,
	}
	if sc.Obs.Metrics != nil {
		httpCfg.MetricsRegistry = sc.Obs.Metrics.Registry
	}
	if sc.Obs.Tracer != nil {
		httpCfg.Tracer = sc.Obs.Tracer.Tracer()
	}
	if cfg.Observability != nil && cfg.Observability.Metrics != nil {
		httpCfg.MetricsPath = cfg.Observability.Metrics.Path
	}

	return httpapi.NewGateway(httpCfg, sc.Engine, sc.Store.Turns(), limiter, sc.Logger)
}

// parseAPIKeys builds the API key to user ID mapping. Entries are either
// "key:user" or a bare key, which maps to the "default" user.
func parseAPIKeys(entries []string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	keys := make(map[string]string, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			keys[parts[0]] = parts[1]
		} else if parts[0] != "" {
			keys[parts[0]] = "default"
		}
	}
	return keys
}
