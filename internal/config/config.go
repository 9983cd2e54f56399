// Package config handles loading and validating Novus configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Novus.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = in-memory history (dev only)
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	Agents        AgentsConfig         `json:"agents" yaml:"agents"`
	Synonyms      *SynonymsConfig      `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`           // nil = OLS expander with defaults
	Sessions      SessionsConfig       `json:"sessions" yaml:"sessions"`
	RateLimit     *RateLimitConfig     `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`       // nil = rate limiting disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr       string   `json:"addr" yaml:"addr"`               // Default: ":8080"
	APIKeys    []string `json:"api_keys" yaml:"api_keys"`       // "key" or "key:user" entries accepted on /v1. Empty = auth disabled.
	EnableDocs bool     `json:"enable_docs" yaml:"enable_docs"` // Serve interactive OpenAPI docs.
}

// ListenAddr returns the configured address, defaulting to ":8080".
func (s ServerConfig) ListenAddr() string {
	if s.Addr != "" {
		return s.Addr
	}
	return ":8080"
}

// StorageConfig configures the persistence backend.
// When nil, turns are kept in memory only.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: ~/.novus/data/novus.db
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ProvidersConfig configures completion providers. At least one must be set.
// When both are set, Groq is primary and OpenAI is the fallback.
type ProvidersConfig struct {
	Groq   *GroqConfig   `json:"groq,omitempty" yaml:"groq,omitempty"`
	OpenAI *OpenAIConfig `json:"openai,omitempty" yaml:"openai,omitempty"`
}

// GroqConfig configures the Groq provider (OpenAI-compatible API).
type GroqConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`                       // Override: GROQ_API_KEY.
	Model   string `json:"model" yaml:"model"`                           // Default: "llama-3.3-70b-versatile"
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Default: "https://api.groq.com/openai"
}

// ModelName returns the configured model, defaulting to the Groq default.
func (g *GroqConfig) ModelName() string {
	if g.Model != "" {
		return g.Model
	}
	return "llama-3.3-70b-versatile"
}

// API returns the configured base URL, defaulting to the Groq endpoint.
func (g *GroqConfig) API() string {
	if g.BaseURL != "" {
		return g.BaseURL
	}
	return "https://api.groq.com/openai"
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`                       // Override: OPENAI_API_KEY.
	Model   string `json:"model" yaml:"model"`                           // Default: "gpt-4o-mini"
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // For OpenAI-compatible servers (Ollama).
}

// ModelName returns the configured model, defaulting to "gpt-4o-mini".
func (o *OpenAIConfig) ModelName() string {
	if o.Model != "" {
		return o.Model
	}
	return "gpt-4o-mini"
}

// AgentsConfig configures the evidence agents. The clinical, literature, and
// web agents need no credentials and are always on.
type AgentsConfig struct {
	// Analytics enables the market and internal-knowledge agents, which
	// read curated snapshots and documents from a SQL database.
	Analytics *AnalyticsConfig `json:"analytics,omitempty" yaml:"analytics,omitempty"`

	// Patents holds the PatentsView API key. The agent works unkeyed at a
	// reduced rate limit, so this section is optional.
	Patents *PatentsConfig `json:"patents,omitempty" yaml:"patents,omitempty"`

	// LiteratureEmail is sent to NCBI as the contact address per their
	// usage policy.
	LiteratureEmail string `json:"literature_email,omitempty" yaml:"literature_email,omitempty"`
}

// AnalyticsConfig points the market and internal agents at their database.
type AnalyticsConfig struct {
	DSN string `json:"dsn" yaml:"dsn"` // Override: NOVUS_ANALYTICS_DSN.
}

// PatentsConfig holds PatentsView API settings.
type PatentsConfig struct {
	APIKey string `json:"api_key" yaml:"api_key"` // Override: PATENTSVIEW_API_KEY.
}

// SynonymsConfig configures the condition synonym expander.
type SynonymsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`                       // Default: true when the section is present.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Default: EBI OLS4.
}

// SessionsConfig configures in-memory session lifecycle.
type SessionsConfig struct {
	IdleTTLMinutes int    `json:"idle_ttl_minutes" yaml:"idle_ttl_minutes"` // Default: 120.
	SweepSchedule  string `json:"sweep_schedule" yaml:"sweep_schedule"`     // Cron spec. Default: "*/10 * * * *"
}

// IdleTTL returns the session idle timeout, defaulting to two hours.
func (s SessionsConfig) IdleTTL() time.Duration {
	if s.IdleTTLMinutes > 0 {
		return time.Duration(s.IdleTTLMinutes) * time.Minute
	}
	return 2 * time.Hour
}

// SweepCron returns the eviction schedule, defaulting to every 10 minutes.
func (s SessionsConfig) SweepCron() string {
	if s.SweepSchedule != "" {
		return s.SweepSchedule
	}
	return "*/10 * * * *"
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // Default: 60
	Burst             int `json:"burst" yaml:"burst"`                             // Default: 10
}

// ObservabilityConfig configures metrics, tracing, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "novus"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// AnomalyConfig configures threshold-based anomaly detection.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// Load reads the config file (YAML or JSON by extension), applies environment
// variable overrides, and validates the result. Environment variables take
// precedence over config values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", resolved, err)
	}
	return &cfg, nil
}

// Default returns a config built entirely from environment variables, used
// when no config file is given.
func Default() (*Config, error) {
	cfg := &Config{}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps environment variables onto the config. Sections are
// created on demand so a key can be supplied purely through the environment.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		if c.Providers.Groq == nil {
			c.Providers.Groq = &GroqConfig{}
		}
		c.Providers.Groq.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &OpenAIConfig{}
		}
		c.Providers.OpenAI.APIKey = key
	}
	if key := os.Getenv("PATENTSVIEW_API_KEY"); key != "" {
		if c.Agents.Patents == nil {
			c.Agents.Patents = &PatentsConfig{}
		}
		c.Agents.Patents.APIKey = key
	}
	if dsn := os.Getenv("NOVUS_ANALYTICS_DSN"); dsn != "" {
		if c.Agents.Analytics == nil {
			c.Agents.Analytics = &AnalyticsConfig{}
		}
		c.Agents.Analytics.DSN = dsn
	}
	if dsn := os.Getenv("NOVUS_DB_DSN"); dsn != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = dsn
	}
	if addr := os.Getenv("NOVUS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if keys := os.Getenv("NOVUS_API_KEYS"); keys != "" {
		c.Server.APIKeys = splitNonEmpty(keys, ",")
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Providers.Groq == nil && c.Providers.OpenAI == nil {
		return fmt.Errorf("at least one completion provider must be configured (providers.groq or providers.openai)")
	}
	if c.Providers.Groq != nil && c.Providers.Groq.APIKey == "" {
		return fmt.Errorf("providers.groq.api_key is required (or set GROQ_API_KEY)")
	}
	if c.Providers.OpenAI != nil && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("providers.openai.api_key is required (or set OPENAI_API_KEY)")
	}
	if c.Storage != nil {
		switch c.Storage.StorageDriver() {
		case "sqlite":
		case "postgres":
			if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
			}
		default:
			return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
		}
	}
	if rl := c.RateLimit; rl != nil {
		if rl.RequestsPerMinute < 0 || rl.Burst < 0 {
			return fmt.Errorf("rate_limit values must be non-negative")
		}
	}
	if c.Sessions.IdleTTLMinutes < 0 {
		return fmt.Errorf("sessions.idle_ttl_minutes must be non-negative")
	}
	return nil
}

// resolvePath expands a leading ~ to the user's home directory.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
