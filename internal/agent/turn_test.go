package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/budget"
	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/modelrouter"
	"github.com/neeroai/migue.ai-sub000/internal/providers"
	"github.com/neeroai/migue.ai-sub000/internal/store"
	"github.com/neeroai/migue.ai-sub000/internal/store/memory"
	"github.com/neeroai/migue.ai-sub000/internal/tools"
)

// mockProvider scripts a sequence of responses, or fails every call.
type mockProvider struct {
	name      string
	responses []*providers.ChatResponse
	err       error
	requests  []providers.ChatRequest
}

func (m *mockProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &providers.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *mockProvider) DefaultModel() string { return "mock-model" }
func (m *mockProvider) Name() string         { return m.name }

func textResponse(text string) *providers.ChatResponse {
	return &providers.ChatResponse{
		Content:      text,
		FinishReason: "stop",
		ServedModel:  "claude-3-5-haiku-20241022",
		Usage:        &providers.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}
}

// reminderTool is a minimal keyed action tool for turn-level tests.
type reminderTool struct {
	actions store.ActionStore
}

func (t *reminderTool) Name() string               { return "create_reminder" }
func (t *reminderTool) Description() string        { return "Create a reminder" }
func (t *reminderTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *reminderTool) Spec() tools.Spec {
	return tools.Spec{Risk: tools.RiskMedium, Timeout: 5 * time.Second, Retries: 1, Idempotency: tools.IdempotencyKeyed}
}

func (t *reminderTool) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	title, _ := call.Input["title"].(string)
	_, err := t.actions.InsertReminder(ctx, &store.Reminder{
		UserID:         call.UserID,
		Title:          title,
		DueAt:          time.Now().Add(time.Hour),
		IdempotencyKey: call.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return tools.ConfirmResult("reminder created", "Reminder set: "+title), nil
}

type turnFixture struct {
	executor  *Executor
	stores    *store.Stores
	anthropic *mockProvider
	openai    *mockProvider
	user      uuid.UUID
	conv      uuid.UUID
}

func newTurnFixture(t *testing.T) *turnFixture {
	t.Helper()
	st := memory.NewStores()
	ctx := context.Background()

	user, err := st.Users.UpsertByWaID(ctx, "573001112233", "Ana")
	if err != nil {
		t.Fatalf("UpsertByWaID: %v", err)
	}
	conv, err := st.Conversations.Create(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("Create conversation: %v", err)
	}

	anthropic := &mockProvider{name: "anthropic"}
	openai := &mockProvider{name: "openai"}

	registry := tools.NewRegistry()
	if err := registry.Register(&reminderTool{actions: st.Actions}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	engine := tools.NewEngine(registry, tools.NewAllowlist(filepath.Join(t.TempDir(), "missing.json")))

	ledger := budget.NewLedger(st.Usage, config.BudgetConfig{
		DailyLimit:        5.0,
		PerUserLimit:      0.50,
		CriticalThreshold: 0.05,
	})

	executor := NewExecutor(ExecutorConfig{
		Providers: map[string]providers.Provider{"anthropic": anthropic, "openai": openai},
		Router:    modelrouter.NewRouter(nil),
		Ledger:    ledger,
		Engine:    engine,
		Registry:  registry,
		Stores:    st,
		Agent: config.AgentConfig{
			MaxToolIterations: 6,
			MaxResponseChars:  4096,
			LongContextTokens: 8000,
		},
	})

	return &turnFixture{
		executor:  executor,
		stores:    st,
		anthropic: anthropic,
		openai:    openai,
		user:      user.ID,
		conv:      conv.ID,
	}
}

func (f *turnFixture) request(text string, pathway Pathway) TurnRequest {
	return TurnRequest{
		ConversationID: f.conv,
		UserID:         f.user,
		Message:        text,
		MessageID:      "wamid.test",
		Pathway:        pathway,
	}
}

func TestExecuteTurnSimpleReply(t *testing.T) {
	f := newTurnFixture(t)
	f.openai.responses = []*providers.ChatResponse{{
		Content: "¡Hola! ¿En qué te ayudo?", FinishReason: "stop",
		ServedModel: "gpt-4o-mini",
		Usage:       &providers.Usage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100},
	}}

	result, err := f.executor.ExecuteTurn(context.Background(), f.request("hola", PathwayFast))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if result.ResponseText != "¡Hola! ¿En qué te ayudo?" {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}
	if result.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", result.FinishReason)
	}
	if result.Cost <= 0 {
		t.Errorf("Cost = %v, want > 0", result.Cost)
	}
	if result.ToolCallCount != 0 {
		t.Errorf("ToolCallCount = %d, want 0", result.ToolCallCount)
	}
}

func TestExecuteTurnBudgetExhaustedShortCircuits(t *testing.T) {
	f := newTurnFixture(t)
	ctx := context.Background()

	// Spend the whole per-user budget up front.
	if err := f.stores.Usage.AddSpend(ctx, store.Day(time.Now()), f.user, 0.50); err != nil {
		t.Fatalf("AddSpend: %v", err)
	}

	result, err := f.executor.ExecuteTurn(ctx, f.request("hola", PathwayDefault))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if result.FinishReason != "budget_exhausted" {
		t.Errorf("FinishReason = %q, want budget_exhausted", result.FinishReason)
	}
	if result.ResponseText == "" {
		t.Error("exhausted turn must still carry a reply")
	}
	if len(f.anthropic.requests)+len(f.openai.requests) != 0 {
		t.Error("no model call may happen once the budget is exhausted")
	}
}

func TestExecuteTurnToolLoop(t *testing.T) {
	f := newTurnFixture(t)
	f.anthropic.responses = []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ServedModel:  "claude-3-5-haiku-20241022",
			ToolCalls: []providers.ToolCall{{
				ID: "call_1", Name: "create_reminder",
				Arguments: map[string]any{"title": "pagar el arriendo"},
			}},
			Usage: &providers.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
		},
		textResponse("Listo, te recuerdo pagar el arriendo."),
	}

	result, err := f.executor.ExecuteTurn(context.Background(),
		f.request("recuerdame pagar el arriendo mañana", PathwayToolIntent))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}

	if result.ToolCallCount != 1 {
		t.Errorf("ToolCallCount = %d, want 1", result.ToolCallCount)
	}
	if result.ResponseText != "Listo, te recuerdo pagar el arriendo." {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}
	reminders := memory.Reminders(f.stores)
	if len(reminders) != 1 {
		t.Fatalf("reminders = %d, want 1", len(reminders))
	}
	if reminders[0].IdempotencyKey != "wamid.test:call_1" {
		t.Errorf("IdempotencyKey = %q, want message-scoped key", reminders[0].IdempotencyKey)
	}

	// The recall request must carry the assistant tool call and the
	// tool outcome message.
	last := f.anthropic.requests[len(f.anthropic.requests)-1]
	var sawTool bool
	for _, m := range last.Messages {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawTool = true
		}
	}
	if !sawTool {
		t.Error("tool outcome was not fed back to the model")
	}
}

func TestExecuteTurnEmptyTextFallsBackToConfirmation(t *testing.T) {
	f := newTurnFixture(t)
	f.anthropic.responses = []*providers.ChatResponse{
		{
			FinishReason: "tool_calls",
			ServedModel:  "claude-3-5-haiku-20241022",
			ToolCalls: []providers.ToolCall{{
				ID: "call_1", Name: "create_reminder",
				Arguments: map[string]any{"title": "pagar el arriendo"},
			}},
			Usage: &providers.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
		},
		// Model answers the recall with empty text.
		{Content: "", FinishReason: "tool_calls", ServedModel: "claude-3-5-haiku-20241022",
			Usage: &providers.Usage{PromptTokens: 140, CompletionTokens: 1, TotalTokens: 141}},
	}

	result, err := f.executor.ExecuteTurn(context.Background(),
		f.request("recuerdame pagar el arriendo", PathwayToolIntent))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if result.ResponseText != "Reminder set: pagar el arriendo" {
		t.Errorf("ResponseText = %q, want the tool confirmation", result.ResponseText)
	}
}

func TestExecuteTurnFallbackOnPrimaryFailure(t *testing.T) {
	f := newTurnFixture(t)
	// Default routing for a short low-complexity message picks openai
	// (cheapest); fail it so the turn falls back to anthropic.
	f.openai.err = errors.New("upstream 529")
	f.anthropic.responses = []*providers.ChatResponse{textResponse("aquí estoy")}

	result, err := f.executor.ExecuteTurn(context.Background(), f.request("hola", PathwayFast))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if result.ResponseText != "aquí estoy" {
		t.Errorf("ResponseText = %q", result.ResponseText)
	}
	if len(f.openai.requests) != 1 {
		t.Errorf("primary calls = %d, want 1", len(f.openai.requests))
	}
	if len(f.anthropic.requests) != 1 {
		t.Errorf("fallback calls = %d, want 1", len(f.anthropic.requests))
	}
}

func TestExecuteTurnDegradesWhenAllProvidersFail(t *testing.T) {
	f := newTurnFixture(t)
	f.openai.err = errors.New("upstream 529")
	f.anthropic.err = errors.New("upstream 500")

	result, err := f.executor.ExecuteTurn(context.Background(), f.request("hola", PathwayFast))
	if err != nil {
		t.Fatalf("ExecuteTurn should degrade, not error: %v", err)
	}
	if result.FinishReason != "error" {
		t.Errorf("FinishReason = %q, want error", result.FinishReason)
	}
	if result.ResponseText == "" {
		t.Error("degraded turn must still carry a reply")
	}
}

func TestExecuteTurnTruncatesResponse(t *testing.T) {
	f := newTurnFixture(t)
	long := strings.Repeat("palabra ", 1000)
	f.openai.responses = []*providers.ChatResponse{{
		Content: long, FinishReason: "stop", ServedModel: "gpt-4o-mini",
		Usage: &providers.Usage{PromptTokens: 100, CompletionTokens: 900, TotalTokens: 1000},
	}}

	result, err := f.executor.ExecuteTurn(context.Background(), f.request("hola", PathwayFast))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}
	if n := len([]rune(result.ResponseText)); n > 4096 {
		t.Errorf("response length = %d runes, want <= 4096", n)
	}
	if !strings.HasSuffix(result.ResponseText, "…") {
		t.Error("truncated response should end with an ellipsis")
	}
}

func TestExecuteTurnSettlesCostByServedModel(t *testing.T) {
	f := newTurnFixture(t)
	// The vendor reports a dated snapshot of the requested model.
	f.openai.responses = []*providers.ChatResponse{{
		Content: "ok", FinishReason: "stop",
		ServedModel: "gpt-4o-mini-2024-07-18",
		Usage:       &providers.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}}

	result, err := f.executor.ExecuteTurn(context.Background(), f.request("hola", PathwayFast))
	if err != nil {
		t.Fatalf("ExecuteTurn: %v", err)
	}

	entry, ok := modelrouter.FindByModel(modelrouter.DefaultCatalog(), "gpt-4o-mini")
	if !ok {
		t.Fatal("catalog lookup failed")
	}
	want := entry.CostFor(1000, 1000)
	if result.Cost < want-1e-9 || result.Cost > want+1e-9 {
		t.Errorf("Cost = %v, want %v priced by the served model", result.Cost, want)
	}

	spent, err := f.stores.Usage.UserSpent(context.Background(), store.Day(time.Now()), f.user)
	if err != nil {
		t.Fatalf("UserSpent: %v", err)
	}
	if spent < want-1e-9 {
		t.Errorf("ledger spent = %v, want >= %v", spent, want)
	}
}

func TestHeuristicClassifier(t *testing.T) {
	c := HeuristicClassifier{}
	tests := []struct {
		name  string
		text  string
		media string
		want  string
	}{
		{"short text", "hola", "", "low"},
		{"medium text", strings.Repeat("a", 200), "", "medium"},
		{"long text", strings.Repeat("a", 700), "", "high"},
		{"image", "caption", "image", "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text, tt.media); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileForUnknownPathwayDefaults(t *testing.T) {
	got := profileFor(Pathway("nonsense"))
	want := pathwayProfiles[PathwayDefault]
	if got != want {
		t.Errorf("profileFor(unknown) = %+v, want default profile", got)
	}
}
