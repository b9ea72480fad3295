// Package budget tracks model spend against the daily and per-user
// ceilings. Counters are keyed by UTC date at the storage layer, so the
// daily reset is structural: a new day starts from zero without any
// in-process state to clear.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// Remaining is the budget headroom at a point in time. Values never go
// below zero even when an in-flight call overshoots the ceiling.
type Remaining struct {
	Daily   float64
	PerUser float64
}

// Min returns the binding constraint.
func (r Remaining) Min() float64 {
	if r.PerUser < r.Daily {
		return r.PerUser
	}
	return r.Daily
}

// Ledger answers "how much budget remains" and records spend. Spend is
// recorded post-hoc from reported token usage, once per model call; the
// check-then-spend gap is bounded by one call's worst case cost.
type Ledger struct {
	usage store.UsageStore
	cfg   config.BudgetConfig
	now   func() time.Time
}

func NewLedger(usage store.UsageStore, cfg config.BudgetConfig) *Ledger {
	return &Ledger{usage: usage, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock, tests only.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Remaining returns today's headroom for the user.
func (l *Ledger) Remaining(ctx context.Context, userID uuid.UUID) (Remaining, error) {
	day := store.Day(l.now())

	daily, err := l.usage.DailySpent(ctx, day)
	if err != nil {
		return Remaining{}, fmt.Errorf("budget: daily spent: %w", err)
	}
	user, err := l.usage.UserSpent(ctx, day, userID)
	if err != nil {
		return Remaining{}, fmt.Errorf("budget: user spent: %w", err)
	}

	return Remaining{
		Daily:   clampNonNegative(l.cfg.DailyLimit - daily),
		PerUser: clampNonNegative(l.cfg.PerUserLimit - user),
	}, nil
}

// Record adds the cost of one completed model call. The increment is
// additive at the storage layer; concurrent turns interleave safely.
func (l *Ledger) Record(ctx context.Context, userID uuid.UUID, cost float64) error {
	if cost <= 0 {
		return nil
	}
	day := store.Day(l.now())
	if err := l.usage.AddSpend(ctx, day, userID, cost); err != nil {
		return fmt.Errorf("budget: record spend: %w", err)
	}
	return nil
}

// Exhausted reports whether the user has no spendable budget left.
func (l *Ledger) Exhausted(r Remaining) bool {
	return r.Min() <= 0
}

// Critical reports whether remaining budget is below the threshold that
// forces the cheapest model.
func (l *Ledger) Critical(r Remaining) bool {
	return r.Min() < l.cfg.CriticalThreshold
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
