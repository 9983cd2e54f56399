// Package httpapi implements the HTTP API gateway for Novus.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/novusai/novus/internal/conversation"
	"github.com/novusai/novus/internal/history"
	"github.com/novusai/novus/internal/observability"
	"github.com/novusai/novus/internal/orchestrator"
	"github.com/novusai/novus/internal/ratelimit"
	"github.com/novusai/novus/internal/visualization"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// TurnEngine processes one user message into an answer envelope.
type TurnEngine interface {
	ProcessTurn(ctx context.Context, in orchestrator.Input) (*orchestrator.Result, error)
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr string            // e.g., ":8080"
	EnableDocs bool              // Serve OpenAPI docs.
	APIKeys    map[string]string // API key -> user ID mapping. Empty = auth disabled (dev).

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	engine  TurnEngine
	turns   history.TurnStore
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, engine TurnEngine, turns history.TurnStore, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:  cfg,
		engine:  engine,
		turns:   turns,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithOpenAPIDocs enables the interactive API documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Novus",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Authenticated /v1 group with metrics middleware.
	middlewares := []okapi.Middleware{g.authenticate}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append([]okapi.Middleware{
			observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer),
		}, middlewares...)
	}
	g.group = g.okapi.Group("/v1", middlewares...)

	g.group.Post("/synthesize", g.handleSynthesize,
		okapi.DocSummary("Submit a message to the research assistant"),
		okapi.DocTags("Synthesis"),
		okapi.DocRequestBody(SynthesizeRequest{}),
		okapi.DocResponse(SynthesizeResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Get("/history/conversations", g.handleListConversations,
		okapi.DocSummary("List the caller's conversations"),
		okapi.DocTags("History"),
		okapi.DocResponse([]ConversationSummaryResponse{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.group.Get("/history/conversations/{id}", g.handleReplayConversation,
		okapi.DocSummary("Replay a conversation's messages"),
		okapi.DocTags("History"),
		okapi.DocPathParam("id", "string", "Conversation ID (UUID)"),
		okapi.DocResponse(ConversationReplayResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// SynthesizeRequest is the JSON body for POST /v1/synthesize.
type SynthesizeRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"` // Empty = new conversation.
}

// SynthesizeResponse is the JSON response for POST /v1/synthesize.
type SynthesizeResponse struct {
	Type           string                 `json:"type"` // conversation | analysis | error
	Answer         string                 `json:"answer"`
	ConversationID string                 `json:"conversation_id"`
	Mode           string                 `json:"mode"`
	ActiveDrugs    []string               `json:"active_drugs,omitempty"`
	Conditions     []string               `json:"conditions,omitempty"`
	Intent         string                 `json:"intent"`
	Visualization  *visualization.Payload `json:"visualization,omitempty"`
	CorrelationID  string                 `json:"correlation_id"`
}

func (g *Gateway) handleSynthesize(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("message is required")
	}

	correlationID := newCorrelationID()

	g.logger.Info("http synthesize",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("conversation_id", req.ConversationID),
	)

	result, err := g.engine.ProcessTurn(c.Context(), orchestrator.Input{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyMessage):
			return c.AbortBadRequest("message is required")
		case errors.Is(err, conversation.ErrNoCondition):
			return c.AbortBadRequest("no disease condition could be resolved from the query")
		default:
			g.logger.Error("turn processing failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			return c.AbortInternalServerError("processing failed")
		}
	}

	return c.OK(SynthesizeResponse{
		Type:           result.Type,
		Answer:         result.Answer,
		ConversationID: result.ConversationID,
		Mode:           string(result.Mode),
		ActiveDrugs:    result.ActiveDrugs,
		Conditions:     result.Conditions,
		Intent:         string(result.Intent),
		Visualization:  result.Visualization,
		CorrelationID:  correlationID,
	})
}

// ConversationSummaryResponse is one row of GET /v1/history/conversations.
type ConversationSummaryResponse struct {
	ConversationID string    `json:"conversation_id"`
	LastQuestion   string    `json:"last_question"`
	TurnCount      int       `json:"turn_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (g *Gateway) handleListConversations(c *okapi.Context) error {
	userID := c.GetString("userID")

	summaries, err := g.turns.ListConversations(c.Context(), userID)
	if err != nil {
		g.logger.Error("listing conversations failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("listing conversations failed")
	}

	resp := make([]ConversationSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, ConversationSummaryResponse{
			ConversationID: s.ConversationID,
			LastQuestion:   s.LastQuestion,
			TurnCount:      s.TurnCount,
			UpdatedAt:      s.UpdatedAt,
		})
	}
	return c.OK(resp)
}

// MessageResponse is one chat message in a replayed conversation.
type MessageResponse struct {
	Role          string                 `json:"role"` // "user" or "assistant"
	Content       string                 `json:"content"`
	Intent        string                 `json:"intent,omitempty"`
	Mode          string                 `json:"mode,omitempty"`
	Visualization *visualization.Payload `json:"visualization,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ConversationReplayResponse is the JSON response for a conversation replay.
type ConversationReplayResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

func (g *Gateway) handleReplayConversation(c *okapi.Context) error {
	userID := c.GetString("userID")
	convID := c.Param("id")

	turns, err := g.turns.Replay(c.Context(), convID, userID)
	if errors.Is(err, history.ErrNotFound) {
		return c.JSON(http.StatusNotFound, okapi.M{"error": "conversation not found"})
	}
	if err != nil {
		g.logger.Error("replaying conversation failed",
			slog.String("conversation_id", convID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("replaying conversation failed")
	}

	return c.OK(ConversationReplayResponse{
		ConversationID: convID,
		Messages:       turnsToMessages(turns),
	})
}

// turnsToMessages flattens persisted turns into role/content chat messages.
// The assistant entry carries the turn's analytical metadata.
func turnsToMessages(turns []history.Turn) []MessageResponse {
	out := make([]MessageResponse, 0, 2*len(turns))
	for _, t := range turns {
		out = append(out, MessageResponse{
			Role:      "user",
			Content:   t.Question,
			CreatedAt: t.CreatedAt,
		})
		out = append(out, MessageResponse{
			Role:          "assistant",
			Content:       t.Answer,
			Intent:        string(t.Intent),
			Mode:          string(t.Mode),
			Visualization: t.Visualization,
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on the
// request context. With no keys configured, every caller maps to "local".
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("userID", "local")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// --- Helpers ---

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
