package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Decision actions.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionConfirm Action = "confirm" // blocked pending user confirmation
	ActionDeny    Action = "deny"
)

// Outcome statuses from governed execution.
type Status string

const (
	StatusOK      Status = "ok"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

// PolicyContext carries the caller-side facts a decision depends on.
type PolicyContext struct {
	UserID               string
	Pathway              string
	ExplicitConsent      bool
	LowTrustInput        bool // content inferred from image/audio rather than typed text
	AllowlistedRecipient bool // true when the tool has no recipient concept
}

// Decision is the policy verdict for one invocation. Deterministic in
// (toolName, PolicyContext); reproducible, never persisted.
type Decision struct {
	Action Action
	Risk   RiskLevel
	Reason string
	Spec   Spec
}

// Outcome is the terminal, non-throwing result of governed execution.
type Outcome struct {
	Status   Status
	Message  string // what the model/user gets to hear
	Decision Decision
	Elapsed  time.Duration
	Attempts int
}

// Engine evaluates tool invocations against the risk catalog and runs
// allowed ones under their execution contract.
type Engine struct {
	registry  *Registry
	allowlist *Allowlist
}

func NewEngine(registry *Registry, allowlist *Allowlist) *Engine {
	return &Engine{registry: registry, allowlist: allowlist}
}

// Evaluate computes the allow/confirm/deny verdict. Pure function of its
// inputs; all ambient state (the allowlist) is folded into the context by
// the caller before evaluation.
func (e *Engine) Evaluate(toolName string, pctx PolicyContext) Decision {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		return Decision{
			Action: ActionDeny,
			Reason: "unknown tool",
		}
	}
	spec := tool.Spec()
	d := Decision{Risk: spec.Risk, Spec: spec}

	switch {
	case spec.Risk == RiskHigh && !pctx.AllowlistedRecipient:
		d.Action = ActionDeny
		d.Reason = "high-risk target not on allow-list"

	case spec.Risk == RiskHigh && !pctx.ExplicitConsent:
		d.Action = ActionConfirm
		d.Reason = "high-risk tool requires explicit consent"

	case spec.Risk != RiskLow && pctx.LowTrustInput && !pctx.ExplicitConsent:
		d.Action = ActionConfirm
		d.Reason = "low-trust input pathway requires explicit consent"

	default:
		d.Action = ActionAllow
		d.Reason = "within policy"
	}
	return d
}

// ExecuteGoverned evaluates and, when allowed, runs the tool under its
// timeout and retry contract. It never returns an error: success,
// policy-blocked and execution-failure all resolve to an Outcome whose
// Message the agent can relay.
func (e *Engine) ExecuteGoverned(ctx context.Context, toolName string, pctx PolicyContext, call Call) Outcome {
	start := time.Now()

	// Fold the recipient allowlist into the context before the pure
	// evaluation step.
	pctx.AllowlistedRecipient = e.recipientAllowed(toolName, call)

	decision := e.Evaluate(toolName, pctx)

	slog.Info("tool policy decision",
		"tool", toolName, "action", decision.Action, "risk", decision.Risk,
		"reason", decision.Reason, "pathway", pctx.Pathway,
	)

	switch decision.Action {
	case ActionDeny:
		return Outcome{
			Status:   StatusBlocked,
			Message:  fmt.Sprintf("The %s action was not permitted: %s.", toolName, decision.Reason),
			Decision: decision,
			Elapsed:  time.Since(start),
		}
	case ActionConfirm:
		return Outcome{
			Status:   StatusBlocked,
			Message:  fmt.Sprintf("The %s action needs your confirmation before I can run it.", toolName),
			Decision: decision,
			Elapsed:  time.Since(start),
		}
	}

	tool, _ := e.registry.Get(toolName)
	outcome := e.runWithContract(ctx, tool, decision.Spec, call)
	outcome.Decision = decision
	outcome.Elapsed = time.Since(start)
	return outcome
}

// runWithContract retries up to Spec.Retries additional attempts, each
// raced against the tool's timeout. The timeout is a race against a
// timer, not a cancellation: a timed-out attempt may still complete its
// side effect later, which keyed idempotency makes harmless.
func (e *Engine) runWithContract(ctx context.Context, tool Tool, spec Spec, call Call) Outcome {
	attempts := 0
	var lastMsg string

	for attempts <= spec.Retries {
		attempts++

		result, err := e.raceTimeout(ctx, tool, spec.Timeout, call)
		switch {
		case err != nil:
			lastMsg = err.Error()
			slog.Warn("tool attempt failed",
				"tool", tool.Name(), "attempt", attempts, "error", err)
		case result.IsError:
			lastMsg = result.ForLLM
			slog.Warn("tool returned error result",
				"tool", tool.Name(), "attempt", attempts, "error", lastMsg)
		default:
			msg := result.ForUser
			if msg == "" {
				msg = result.ForLLM
			}
			return Outcome{Status: StatusOK, Message: msg, Attempts: attempts}
		}
	}

	return Outcome{
		Status:   StatusError,
		Message:  fmt.Sprintf("The %s action failed after %d attempts: %s", tool.Name(), attempts, lastMsg),
		Attempts: attempts,
	}
}

func (e *Engine) raceTimeout(ctx context.Context, tool Tool, timeout time.Duration, call Call) (*Result, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	type toolReturn struct {
		result *Result
		err    error
	}
	done := make(chan toolReturn, 1)

	go func() {
		result, err := tool.Execute(ctx, call)
		done <- toolReturn{result, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ret := <-done:
		if ret.err != nil {
			return nil, ret.err
		}
		if ret.result == nil {
			return nil, fmt.Errorf("tool %s returned nil result", tool.Name())
		}
		return ret.result, nil
	case <-timer.C:
		return nil, fmt.Errorf("tool %s timed out after %s", tool.Name(), timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recipientAllowed resolves the allowlist flag for tools that target an
// external recipient. Tools without a recipient concept pass vacuously.
func (e *Engine) recipientAllowed(toolName string, call Call) bool {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		return false
	}
	targeted, hasTarget := tool.(RecipientTargeted)
	if !hasTarget {
		return true
	}
	recipient := targeted.Recipient(call)
	if recipient == "" {
		return false
	}
	return e.allowlist.Allowed(recipient)
}

// RecipientTargeted is implemented by tools whose side effect reaches an
// external party; the policy engine checks that party against the
// allowlist.
type RecipientTargeted interface {
	Recipient(call Call) string
}
