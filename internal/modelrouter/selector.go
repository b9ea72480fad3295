package modelrouter

import (
	"errors"
	"log/slog"
)

// ErrNoFallback means every remaining catalog entry shares the primary's
// provider; the turn proceeds on the primary alone.
var ErrNoFallback = errors.New("modelrouter: no cross-provider fallback available")

// RouteContext is the input to one selection decision.
type RouteContext struct {
	EstimatedTokens  int
	Complexity       string
	HasTools         bool
	BudgetRemaining  float64
	BudgetCritical   bool
	LongContextLimit int // estimated-token threshold that triggers long_context
}

// Selection is the routing outcome. Produced fresh per turn, logged,
// never persisted.
type Selection struct {
	Provider      string
	Model         string
	Reason        string
	EstimatedCost float64
	Entry         CatalogEntry
}

// Router selects primary and fallback models from the catalog.
type Router struct {
	catalog []CatalogEntry
}

func NewRouter(catalog []CatalogEntry) *Router {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Router{catalog: catalog}
}

// Catalog exposes the entries for cost lookups by the caller.
func (r *Router) Catalog() []CatalogEntry { return r.catalog }

// Select applies the routing policy in priority order:
// tool capability > context size > budget floor > cost.
func (r *Router) Select(ctx RouteContext) Selection {
	var sel Selection

	switch {
	case ctx.HasTools:
		// Tool correctness outweighs cost: take the cheapest
		// tool-capable entry that fits the complexity tier.
		sel = r.cheapest(ctx, func(e CatalogEntry) bool { return e.ToolCapable })
		sel.Reason = ReasonToolExecution

	case ctx.LongContextLimit > 0 && ctx.EstimatedTokens > ctx.LongContextLimit:
		sel = r.largestContext(ctx)
		sel.Reason = ReasonLongContext

	case ctx.BudgetCritical:
		sel = r.cheapest(ctx, nil)
		sel.Reason = ReasonBudgetCritical

	default:
		sel = r.cheapestForTier(ctx)
		sel.Reason = ReasonCostOptimized
	}

	slog.Info("model selected",
		"provider", sel.Provider, "model", sel.Model, "reason", sel.Reason,
		"estimated_cost", sel.EstimatedCost, "estimated_tokens", ctx.EstimatedTokens,
	)
	return sel
}

// Fallback returns a selection on a different provider than the primary,
// so a vendor outage cannot take down both. The fallback keeps the
// primary's capability requirement when tools are in play.
func (r *Router) Fallback(primary Selection, ctx RouteContext) (Selection, error) {
	var best *CatalogEntry
	for i := range r.catalog {
		e := r.catalog[i]
		if e.Provider == primary.Provider {
			continue
		}
		if ctx.HasTools && !e.ToolCapable {
			continue
		}
		if best == nil || estimateCost(e, ctx) < estimateCost(*best, ctx) {
			best = &e
		}
	}
	if best == nil {
		return Selection{}, ErrNoFallback
	}
	return Selection{
		Provider:      best.Provider,
		Model:         best.Model,
		Reason:        primary.Reason,
		EstimatedCost: estimateCost(*best, ctx),
		Entry:         *best,
	}, nil
}

// CanAffordFallback reports whether the fallback attempt fits in the
// remaining budget.
func (r *Router) CanAffordFallback(budgetRemaining float64, fallback Selection) bool {
	return fallback.EstimatedCost <= budgetRemaining
}

func (r *Router) cheapest(ctx RouteContext, match func(CatalogEntry) bool) Selection {
	var best *CatalogEntry
	for i := range r.catalog {
		e := r.catalog[i]
		if match != nil && !match(e) {
			continue
		}
		if best == nil || estimateCost(e, ctx) < estimateCost(*best, ctx) {
			best = &e
		}
	}
	if best == nil {
		// Constraint unsatisfiable; degrade to unconstrained cheapest
		// rather than failing the turn.
		return r.cheapest(ctx, nil)
	}
	return selectionFor(*best, ctx)
}

func (r *Router) cheapestForTier(ctx RouteContext) Selection {
	want := tierRank(ctx.Complexity)
	var best *CatalogEntry
	for i := range r.catalog {
		e := r.catalog[i]
		if tierRank(e.Tier) < want {
			continue
		}
		if best == nil || estimateCost(e, ctx) < estimateCost(*best, ctx) {
			best = &e
		}
	}
	if best == nil {
		return r.cheapest(ctx, nil)
	}
	return selectionFor(*best, ctx)
}

func (r *Router) largestContext(ctx RouteContext) Selection {
	var best *CatalogEntry
	for i := range r.catalog {
		e := r.catalog[i]
		if best == nil || e.ContextWindow > best.ContextWindow ||
			(e.ContextWindow == best.ContextWindow && estimateCost(e, ctx) < estimateCost(*best, ctx)) {
			best = &e
		}
	}
	return selectionFor(*best, ctx)
}

func selectionFor(e CatalogEntry, ctx RouteContext) Selection {
	return Selection{
		Provider:      e.Provider,
		Model:         e.Model,
		EstimatedCost: estimateCost(e, ctx),
		Entry:         e,
	}
}

// estimateCost assumes output roughly a quarter of input, floored at 256
// tokens. A pre-call heuristic only; real billing uses reported usage.
func estimateCost(e CatalogEntry, ctx RouteContext) float64 {
	out := ctx.EstimatedTokens / 4
	if out < 256 {
		out = 256
	}
	return e.CostFor(ctx.EstimatedTokens, out)
}
