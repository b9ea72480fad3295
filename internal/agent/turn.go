// Package agent executes one conversational turn: context assembly,
// budget-gated model selection, the tool-call loop under policy
// governance, and response finalization.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neeroai/migue.ai-sub000/internal/budget"
	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/modelrouter"
	"github.com/neeroai/migue.ai-sub000/internal/providers"
	"github.com/neeroai/migue.ai-sub000/internal/store"
	"github.com/neeroai/migue.ai-sub000/internal/tools"
)

var tracer = otel.Tracer("migue/agent")

// TurnRequest is one inbound message ready for an agent turn.
type TurnRequest struct {
	ConversationID  uuid.UUID
	UserID          uuid.UUID
	Message         string
	MessageID       string // channel message id, seeds tool idempotency keys
	MediaType       string
	Pathway         Pathway
	ExplicitConsent bool // caller-confirmed consent for risky actions
}

// TurnResult is the output of a completed turn.
type TurnResult struct {
	ResponseText  string
	Usage         providers.Usage
	Cost          float64
	FinishReason  string
	ToolCallCount int
	Selection     modelrouter.Selection
}

// Executor runs agent turns.
type Executor struct {
	providers  map[string]providers.Provider
	router     *modelrouter.Router
	ledger     *budget.Ledger
	engine     *tools.Engine
	registry   *tools.Registry
	stores     *store.Stores
	memory     MemoryStore
	classifier Classifier
	cfg        config.AgentConfig
}

// ExecutorConfig bundles the executor's collaborators.
type ExecutorConfig struct {
	Providers  map[string]providers.Provider
	Router     *modelrouter.Router
	Ledger     *budget.Ledger
	Engine     *tools.Engine
	Registry   *tools.Registry
	Stores     *store.Stores
	Memory     MemoryStore
	Classifier Classifier
	Agent      config.AgentConfig
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Memory == nil {
		cfg.Memory = NopMemory{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = HeuristicClassifier{}
	}
	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = 6
	}
	if cfg.Agent.MaxResponseChars <= 0 {
		cfg.Agent.MaxResponseChars = 4096
	}
	return &Executor{
		providers:  cfg.Providers,
		router:     cfg.Router,
		ledger:     cfg.Ledger,
		engine:     cfg.Engine,
		registry:   cfg.Registry,
		stores:     cfg.Stores,
		memory:     cfg.Memory,
		classifier: cfg.Classifier,
		cfg:        cfg.Agent,
	}
}

// ExecuteTurn runs one complete request→response cycle, including any
// tool calls. It returns an error only for misconfiguration-class
// failures; degraded turns return a usable result with a fixed message.
func (e *Executor) ExecuteTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("pathway", string(req.Pathway)),
	))
	defer span.End()

	prof := profileFor(req.Pathway)

	// Budget gate: exhaustion short-circuits the turn before any model
	// call is attempted.
	remaining, err := e.ledger.Remaining(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("agent: budget check: %w", err)
	}
	if e.ledger.Exhausted(remaining) {
		slog.Info("turn short-circuited: budget exhausted", "user", req.UserID)
		return &TurnResult{
			ResponseText: budgetExhaustedMessage,
			FinishReason: "budget_exhausted",
		}, nil
	}

	messages := e.buildMessages(ctx, req, prof)

	useTools := prof.AllowTools && len(e.registry.Defs()) > 0
	complexity := e.classifier.Classify(req.Message, req.MediaType)
	routeCtx := modelrouter.RouteContext{
		EstimatedTokens:  modelrouter.EstimateTurnTokens(historyTexts(messages), ""),
		Complexity:       complexity,
		HasTools:         useTools && (prof.ForceTools || complexity != "low"),
		BudgetRemaining:  remaining.Min(),
		BudgetCritical:   e.ledger.Critical(remaining),
		LongContextLimit: e.cfg.LongContextTokens,
	}

	selection := e.router.Select(routeCtx)
	span.SetAttributes(
		attribute.String("model", selection.Model),
		attribute.String("route_reason", selection.Reason),
	)

	result := &TurnResult{Selection: selection, FinishReason: "stop"}

	var toolDefs []providers.ToolDefinition
	if routeCtx.HasTools {
		toolDefs = e.registry.Defs()
	}

	chatReq := providers.ChatRequest{
		Messages:    messages,
		Tools:       toolDefs,
		Model:       selection.Model,
		MaxTokens:   1024,
		Temperature: 0.7,
	}

	resp, served, err := e.callWithFallback(ctx, selection, routeCtx, chatReq, req.UserID, result)
	if err != nil {
		slog.Error("model call failed on primary and fallback", "error", err)
		result.ResponseText = degradedMessage
		result.FinishReason = "error"
		return result, nil
	}
	chatReq.Model = served.Model

	// Tool loop: execute requested calls through the policy engine and
	// recall the model until it produces text or the iteration budget
	// runs out.
	finalText := resp.Content
	var lastConfirmation string

	for iter := 0; len(resp.ToolCalls) > 0 && iter < e.cfg.MaxToolIterations; iter++ {
		assistantMsg := providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		chatReq.Messages = append(chatReq.Messages, assistantMsg)

		for _, tc := range resp.ToolCalls {
			result.ToolCallCount++

			outcome := e.engine.ExecuteGoverned(ctx, tc.Name, tools.PolicyContext{
				UserID:          req.UserID.String(),
				Pathway:         string(req.Pathway),
				ExplicitConsent: req.ExplicitConsent,
				LowTrustInput:   prof.LowTrust,
			}, tools.Call{
				UserID:         req.UserID,
				ConversationID: req.ConversationID,
				// Keyed on the inbound message so a redelivered
				// event or timed-out retry cannot double-execute.
				IdempotencyKey: req.MessageID + ":" + tc.ID,
				Input:          tc.Arguments,
			})

			if outcome.Status == tools.StatusOK {
				lastConfirmation = outcome.Message
			}

			chatReq.Messages = append(chatReq.Messages, providers.Message{
				Role:       "tool",
				Content:    outcome.Message,
				ToolCallID: tc.ID,
			})
		}

		resp, err = e.call(ctx, served, chatReq, req.UserID, result)
		if err != nil {
			slog.Warn("model recall after tools failed", "error", err)
			// The tool side effects already happened; fall back to
			// the confirmation text rather than silence.
			finalText = lastConfirmation
			result.FinishReason = "tool_calls"
			break
		}
		finalText = resp.Content
		result.FinishReason = resp.FinishReason
	}

	if resp != nil {
		result.FinishReason = resp.FinishReason
		if finalText == "" {
			finalText = resp.Content
		}
	}

	// Some providers finish with "tool_calls" and empty text after a
	// successful tool run; reply with the tool's own confirmation
	// rather than sending nothing.
	if finalText == "" && lastConfirmation != "" {
		finalText = lastConfirmation
	}
	if finalText == "" {
		finalText = degradedMessage
		result.FinishReason = "error"
	}

	result.ResponseText = finalizeResponse(finalText, e.cfg.MaxResponseChars)
	return result, nil
}

// callWithFallback tries the primary selection, then a different-vendor
// fallback when the primary fails and the fallback is affordable.
func (e *Executor) callWithFallback(
	ctx context.Context,
	primary modelrouter.Selection,
	routeCtx modelrouter.RouteContext,
	chatReq providers.ChatRequest,
	userID uuid.UUID,
	result *TurnResult,
) (*providers.ChatResponse, modelrouter.Selection, error) {
	resp, err := e.call(ctx, primary, chatReq, userID, result)
	if err == nil {
		return resp, primary, nil
	}
	slog.Warn("primary model call failed, considering fallback",
		"provider", primary.Provider, "model", primary.Model, "error", err)

	fallback, fbErr := e.router.Fallback(primary, routeCtx)
	if fbErr != nil {
		return nil, primary, err
	}
	if !e.router.CanAffordFallback(routeCtx.BudgetRemaining, fallback) {
		slog.Warn("fallback unaffordable, degrading",
			"fallback_cost", fallback.EstimatedCost, "remaining", routeCtx.BudgetRemaining)
		return nil, primary, err
	}

	chatReq.Model = fallback.Model
	resp, err = e.call(ctx, fallback, chatReq, userID, result)
	if err != nil {
		return nil, fallback, err
	}
	return resp, fallback, nil
}

// call invokes one model request and settles its cost against the ledger
// exactly once, priced by the model that actually served the request.
func (e *Executor) call(
	ctx context.Context,
	sel modelrouter.Selection,
	chatReq providers.ChatRequest,
	userID uuid.UUID,
	result *TurnResult,
) (*providers.ChatResponse, error) {
	provider, ok := e.providers[sel.Provider]
	if !ok {
		return nil, fmt.Errorf("agent: provider %s not configured", sel.Provider)
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	cost := e.settleCost(ctx, sel, resp, userID)
	result.Cost += cost
	result.Usage.Add(resp.Usage)

	slog.Info("model call completed",
		"provider", sel.Provider, "served_model", resp.ServedModel,
		"finish", resp.FinishReason, "cost", cost,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (e *Executor) settleCost(ctx context.Context, sel modelrouter.Selection, resp *providers.ChatResponse, userID uuid.UUID) float64 {
	if resp.Usage == nil {
		return 0
	}

	// The router's choice is a preference hint; price the serving model.
	entry := sel.Entry
	if resp.ServedModel != "" {
		if found, ok := modelrouter.FindByModel(e.router.Catalog(), resp.ServedModel); ok {
			entry = found
		} else {
			slog.Warn("served model not in catalog, pricing as requested",
				"served", resp.ServedModel, "requested", sel.Model)
		}
	}

	cost := entry.CostFor(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err := e.ledger.Record(ctx, userID, cost); err != nil {
		// Spend tracking failure must not fail the turn; log loudly.
		slog.Error("budget record failed", "cost", cost, "error", err)
	}
	return cost
}
