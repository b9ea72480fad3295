// Package tools contains the governed tool catalog: registration with a
// static risk classification, the allow/confirm/deny policy engine, and
// the timeout/retry execution wrapper. A governed tool's fault never
// aborts the surrounding conversational turn; every outcome resolves to
// a result object the agent can relay.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/providers"
)

// SchemaVersion of the tool registration contract.
const SchemaVersion = "v1"

// Risk tiers. Static per tool, never derived from input.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Idempotency strategies for state-mutating tools. Keyed tools make a
// "fire, time out, later retry" sequence safe: the retry lands on the
// same key and the store deduplicates.
type Idempotency string

const (
	IdempotencyNone  Idempotency = "none"
	IdempotencyKeyed Idempotency = "keyed"
)

// Spec is a tool's static registration contract.
type Spec struct {
	Risk        RiskLevel
	Timeout     time.Duration
	Retries     int // additional attempts after the first
	Idempotency Idempotency
}

// Call is one tool invocation, scoped to a single agent turn.
type Call struct {
	UserID         uuid.UUID
	ConversationID uuid.UUID
	IdempotencyKey string
	Input          map[string]any
}

// Tool is a governed capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Spec() Spec
	Execute(ctx context.Context, call Call) (*Result, error)
}

// Registry holds the static tool catalog. Registration happens at
// startup; lookups are read-only afterwards, safe for concurrent turns.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tools: duplicate registration: %s", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Defs returns provider-facing tool definitions, sorted for stable
// prompt construction.
func (r *Registry) Defs() []providers.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
