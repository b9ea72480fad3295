// Package modelrouter selects a model for each turn from a small
// capability catalog, weighing tool support, context size, and remaining
// budget, and always keeping a different-vendor fallback available.
package modelrouter

import "strings"

// Complexity tiers assigned by the upstream classifier.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// Selection reasons, logged with every routing decision.
const (
	ReasonToolExecution  = "tool_execution"
	ReasonLongContext    = "long_context"
	ReasonBudgetCritical = "budget_critical"
	ReasonCostOptimized  = "cost_optimized"
)

// CatalogEntry describes one model's capabilities and pricing.
type CatalogEntry struct {
	Provider      string
	Model         string
	ContextWindow int
	InputPer1K    float64 // USD per 1K input tokens
	OutputPer1K   float64 // USD per 1K output tokens
	Tier          string  // highest complexity this entry is suited for
	ToolCapable   bool
}

// CostFor prices a call from reported token counts.
func (e CatalogEntry) CostFor(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*e.InputPer1K + float64(outputTokens)/1000*e.OutputPer1K
}

// DefaultCatalog is the production model set. Ordered cheapest-first
// within each provider; selection logic relies only on the fields.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			ContextWindow: 128000,
			InputPer1K:    0.00015,
			OutputPer1K:   0.0006,
			Tier:          ComplexityMedium,
			ToolCapable:   false,
		},
		{
			Provider:      "openai",
			Model:         "gpt-4o",
			ContextWindow: 128000,
			InputPer1K:    0.0025,
			OutputPer1K:   0.01,
			Tier:          ComplexityHigh,
			ToolCapable:   false,
		},
		{
			Provider:      "anthropic",
			Model:         "claude-3-5-haiku-20241022",
			ContextWindow: 200000,
			InputPer1K:    0.0008,
			OutputPer1K:   0.004,
			Tier:          ComplexityMedium,
			ToolCapable:   true,
		},
		{
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-20250514",
			ContextWindow: 200000,
			InputPer1K:    0.003,
			OutputPer1K:   0.015,
			Tier:          ComplexityHigh,
			ToolCapable:   true,
		},
	}
}

// FindByModel resolves a catalog entry by served model name. Vendors
// report dated snapshots (e.g. "gpt-4o-2024-08-06"), so matching is by
// prefix either way.
func FindByModel(catalog []CatalogEntry, model string) (CatalogEntry, bool) {
	for _, e := range catalog {
		if e.Model == model {
			return e, true
		}
	}
	for _, e := range catalog {
		if strings.HasPrefix(model, e.Model) || strings.HasPrefix(e.Model, model) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

func tierRank(tier string) int {
	switch tier {
	case ComplexityHigh:
		return 2
	case ComplexityMedium:
		return 1
	default:
		return 0
	}
}
