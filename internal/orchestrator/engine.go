// Package orchestrator implements the turn pipeline: it takes one user
// message and runs interpretation, arbitration, evidence dispatch, synthesis,
// visualization extraction, and persistence in order, producing the answer
// envelope the API returns.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novusai/novus/internal/conversation"
	"github.com/novusai/novus/internal/domain"
	"github.com/novusai/novus/internal/evidence"
	"github.com/novusai/novus/internal/history"
	"github.com/novusai/novus/internal/interpreter"
	"github.com/novusai/novus/internal/synthesis"
	"github.com/novusai/novus/internal/visualization"
)

// ErrEmptyMessage is returned for a blank message. The turn is rejected
// before any state is touched and nothing is persisted.
var ErrEmptyMessage = errors.New("message is empty")

// ConflictAnswer is the fixed reply for a rejected condition pivot. The turn
// is answered, not errored: the user needs to be told why, in the chat.
const ConflictAnswer = "Condition change is not allowed. Please start a new chat."

// Result types. "conversation" is the general chat path, "analysis" the
// evidence-backed path, "error" a rejected condition pivot.
const (
	ResultConversation = "conversation"
	ResultAnalysis     = "analysis"
	ResultError        = "error"
)

// Interpreter extracts drugs, conditions, and intent from a raw message.
type Interpreter interface {
	Interpret(ctx context.Context, query string) (*interpreter.Reading, error)
}

// Dispatcher resolves an evidence bundle for one drug.
type Dispatcher interface {
	GetOrFetch(ctx context.Context, cache *evidence.Cache, drug string, conditions []string, intent domain.Intent) (*evidence.Bundle, error)
}

// Synthesizer turns evidence and context into the final answer text.
type Synthesizer interface {
	Chat(ctx context.Context, message string, conditions, drugs []string, chatHistory []synthesis.ChatTurn) string
	Analyze(ctx context.Context, message, drug string, conditions []string, intent domain.Intent, evidenceText string) string
	Compare(ctx context.Context, message string, conditions []string, perDrug []synthesis.DrugEvidence) string
}

// Input is one user message addressed to a conversation.
type Input struct {
	UserID         string
	ConversationID string // Empty = start a new conversation.
	Message        string
}

// Result is the answer envelope for one turn.
type Result struct {
	Type           string                 `json:"type"`
	Answer         string                 `json:"answer"`
	ConversationID string                 `json:"conversation_id"`
	Mode           domain.Mode            `json:"mode"`
	ActiveDrugs    []string               `json:"active_drugs"`
	Conditions     []string               `json:"conditions"`
	Intent         domain.Intent          `json:"intent"`
	Visualization  *visualization.Payload `json:"visualization,omitempty"`
}

// Engine runs the turn pipeline. All collaborators are injected; the engine
// itself holds no external connections.
type Engine struct {
	sessions    conversation.SessionStore
	interpreter Interpreter
	dispatcher  Dispatcher
	synthesizer Synthesizer
	turns       history.TurnStore
	metrics     *Metrics // nil = metrics disabled.
	logger      *slog.Logger
}

// NewEngine creates a turn engine with the given collaborators.
func NewEngine(
	sessions conversation.SessionStore,
	interp Interpreter,
	dispatcher Dispatcher,
	synthesizer Synthesizer,
	turns history.TurnStore,
	metrics *Metrics,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		sessions:    sessions,
		interpreter: interp,
		dispatcher:  dispatcher,
		synthesizer: synthesizer,
		turns:       turns,
		metrics:     metrics,
		logger:      logger,
	}
}

// ProcessTurn answers one user message. Turns on the same conversation
// serialize on the per-conversation lock; turns on different conversations
// run in parallel.
func (e *Engine) ProcessTurn(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()

	if strings.TrimSpace(in.Message) == "" {
		return nil, ErrEmptyMessage
	}

	convID, state := e.resolveSession(ctx, in.ConversationID)
	e.sessions.Lock(convID)
	defer e.sessions.Unlock(convID)

	logger := e.logger.With(
		slog.String("conversation_id", convID),
		slog.String("user_id", in.UserID),
	)

	reading, err := e.interpreter.Interpret(ctx, in.Message)
	if err != nil {
		return nil, err
	}

	// Sticky intent resolves before the general short-circuit: a follow-up
	// like "and in europe?" interprets as GENERAL but must stay on the
	// analytical track of the intent under discussion.
	resolvedIntent := conversation.ResolveIntent(state.LastIntent, reading.Intent)

	var result *Result
	if resolvedIntent.IsGeneral() {
		result = e.chatTurn(ctx, logger, convID, in, state)
	} else {
		result, err = e.analysisTurn(ctx, logger, convID, in, state, reading)
		if err != nil {
			return nil, err
		}
	}

	if e.metrics != nil {
		e.metrics.observeTurn(result.Type, time.Since(started))
	}
	return result, nil
}

// resolveSession returns the session state for the requested conversation,
// creating or rehydrating it as needed.
func (e *Engine) resolveSession(ctx context.Context, requested string) (string, *conversation.State) {
	if requested == "" {
		return e.sessions.Create()
	}
	if state, ok := e.sessions.Get(requested); ok {
		return requested, state
	}

	// Session miss. The conversation may have survived a restart or an
	// idle eviction: seed arbitration state from the latest persisted
	// turn. The evidence cache starts empty and refetches on demand.
	state := e.sessions.CreateWithID(requested)
	last, err := e.turns.Latest(ctx, requested)
	if err != nil {
		e.logger.Warn("history lookup failed, starting fresh session",
			slog.String("conversation_id", requested),
			slog.String("error", err.Error()),
		)
		return requested, state
	}
	if last != nil {
		e.sessions.Apply(requested, func(s *conversation.State) {
			s.Seed(last.Conditions, last.Drugs, last.Intent)
		})
		e.logger.Info("session rehydrated from history",
			slog.String("conversation_id", requested),
			slog.Int("drugs", len(last.Drugs)),
		)
	}
	return requested, state
}

// chatTurn handles a resolved-GENERAL turn: no arbitration, no evidence.
func (e *Engine) chatTurn(ctx context.Context, logger *slog.Logger, convID string, in Input, state *conversation.State) *Result {
	chatHistory := make([]synthesis.ChatTurn, 0, len(state.ChatHistory))
	for _, entry := range state.ChatHistory {
		chatHistory = append(chatHistory, synthesis.ChatTurn{User: entry.User, Assistant: entry.Assistant})
	}

	answer := e.synthesizer.Chat(ctx, in.Message, state.ActiveConditions, state.DrugsSeen, chatHistory)

	e.sessions.Apply(convID, func(s *conversation.State) {
		s.AddChatEntry(in.Message, answer)
	})

	e.persist(ctx, logger, history.Turn{
		ConversationID: convID,
		UserID:         in.UserID,
		Question:       in.Message,
		Answer:         answer,
		Conditions:     state.ActiveConditions,
		Drugs:          state.DrugsSeen,
		Intent:         domain.IntentGeneral,
		Mode:           domain.ModeChat,
		TurnType:       ResultConversation,
	})

	return &Result{
		Type:           ResultConversation,
		Answer:         answer,
		ConversationID: convID,
		Mode:           state.Mode,
		ActiveDrugs:    state.DrugsSeen,
		Conditions:     state.ActiveConditions,
		Intent:         domain.IntentGeneral,
	}
}

// analysisTurn handles a non-general turn: arbitrate, dispatch, synthesize.
func (e *Engine) analysisTurn(ctx context.Context, logger *slog.Logger, convID string, in Input, state *conversation.State, reading *interpreter.Reading) (*Result, error) {
	res, err := conversation.Resolve(state, conversation.TurnInput{
		Drugs:      reading.Drugs,
		Conditions: reading.Conditions,
		Intent:     reading.Intent,
	})
	if errors.Is(err, conversation.ErrConditionConflict) {
		// Rejected pivot: state untouched, nothing persisted.
		logger.Info("condition pivot rejected",
			slog.Any("active", state.ActiveConditions),
			slog.Any("supplied", reading.Conditions),
		)
		return &Result{
			Type:           ResultError,
			Answer:         ConflictAnswer,
			ConversationID: convID,
			Mode:           state.Mode,
			ActiveDrugs:    state.DrugsSeen,
			Conditions:     state.ActiveConditions,
			Intent:         state.LastIntent,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	e.sessions.Apply(convID, func(s *conversation.State) {
		s.ActiveConditions = res.ActiveConditions
		s.DrugsSeen = res.DrugsSeen
		s.LastIntent = res.Intent
		s.Mode = res.Mode
	})

	bundles, err := e.dispatchAll(ctx, state.Evidence, res)
	if err != nil {
		return nil, err
	}

	answer := e.synthesize(ctx, in.Message, res, bundles)
	viz := e.extractVisualization(res, bundles)

	e.persist(ctx, logger, history.Turn{
		ConversationID: convID,
		UserID:         in.UserID,
		Question:       in.Message,
		Answer:         answer,
		Conditions:     res.ActiveConditions,
		Drugs:          res.DrugsSeen,
		Intent:         res.Intent,
		Mode:           res.Mode,
		TurnType:       ResultAnalysis,
		Visualization:  viz,
	})

	return &Result{
		Type:           ResultAnalysis,
		Answer:         answer,
		ConversationID: convID,
		Mode:           res.Mode,
		ActiveDrugs:    res.DrugsSeen,
		Conditions:     res.ActiveConditions,
		Intent:         res.Intent,
		Visualization:  viz,
	}, nil
}

// dispatchAll fetches one bundle per accumulated drug, concurrently in
// comparison mode. Bundle order matches res.DrugsSeen.
func (e *Engine) dispatchAll(ctx context.Context, cache *evidence.Cache, res *conversation.Resolution) ([]*evidence.Bundle, error) {
	bundles := make([]*evidence.Bundle, len(res.DrugsSeen))

	g, gctx := errgroup.WithContext(ctx)
	for i, drug := range res.DrugsSeen {
		g.Go(func() error {
			b, err := e.dispatcher.GetOrFetch(gctx, cache, drug, res.ActiveConditions, res.Intent)
			if err != nil {
				return err
			}
			bundles[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

// NoDrugLabel is the analysis subject for a turn that resolves a condition
// without naming any drug. The answer discusses the condition itself.
const NoDrugLabel = "NONE"

func (e *Engine) synthesize(ctx context.Context, message string, res *conversation.Resolution, bundles []*evidence.Bundle) string {
	if len(res.DrugsSeen) == 0 {
		return e.synthesizer.Analyze(ctx, message, NoDrugLabel, res.ActiveConditions, res.Intent, "")
	}
	if res.Mode == domain.ModeComparison {
		perDrug := make([]synthesis.DrugEvidence, 0, len(bundles))
		for i, b := range bundles {
			perDrug = append(perDrug, synthesis.DrugEvidence{
				Drug:     res.DrugsSeen[i],
				Evidence: b.Flatten(),
			})
		}
		return e.synthesizer.Compare(ctx, message, res.ActiveConditions, perDrug)
	}
	return e.synthesizer.Analyze(ctx, message, res.DrugsSeen[0], res.ActiveConditions, res.Intent, bundles[0].Flatten())
}

// extractVisualization parses chartable data out of the evidence. Only
// single-drug commercial and full-opportunity turns chart; comparison answers
// stay textual.
func (e *Engine) extractVisualization(res *conversation.Resolution, bundles []*evidence.Bundle) *visualization.Payload {
	if res.Mode != domain.ModeSingle {
		return nil
	}
	if res.Intent != domain.IntentCommercial && res.Intent != domain.IntentFullOpportunity {
		return nil
	}
	if len(bundles) == 0 {
		return nil
	}
	b := bundles[0]
	return visualization.Extract(b.Section(evidence.AgentMarket), b.Section(evidence.AgentClinical))
}

// persist appends the turn best-effort. A storage failure loses history, not
// the answer.
func (e *Engine) persist(ctx context.Context, logger *slog.Logger, turn history.Turn) {
	if e.turns == nil {
		return
	}
	if err := e.turns.Append(ctx, turn); err != nil {
		logger.Error("persisting turn failed", slog.String("error", err.Error()))
	}
}
