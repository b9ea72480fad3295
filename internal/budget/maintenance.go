package budget

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// Maintenance prunes usage counters past the retention window on a cron
// schedule and logs the day rollover. It is not the reset mechanism —
// spend keys on the date, so the reset is implicit — this just keeps the
// counter table from growing without bound.
type Maintenance struct {
	usage         store.UsageStore
	cronExpr      string
	retentionDays int
	gron          *gronx.Gronx
}

func NewMaintenance(usage store.UsageStore, cronExpr string, retentionDays int) *Maintenance {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Maintenance{
		usage:         usage,
		cronExpr:      cronExpr,
		retentionDays: retentionDays,
		gron:          gronx.New(),
	}
}

// Run ticks every minute and fires when the cron expression is due.
// Blocks until ctx is cancelled.
func (m *Maintenance) Run(ctx context.Context) error {
	if !m.gron.IsValid(m.cronExpr) {
		slog.Warn("budget maintenance disabled: invalid cron expression", "expr", m.cronExpr)
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastDay := store.Day(time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if day := store.Day(now); day != lastDay {
				slog.Info("budget day rollover", "from", lastDay, "to", day)
				lastDay = day
			}

			due, err := m.gron.IsDue(m.cronExpr, now)
			if err != nil || !due {
				continue
			}
			m.prune(ctx, now)
		}
	}
}

func (m *Maintenance) prune(ctx context.Context, now time.Time) {
	cutoff := store.Day(now.AddDate(0, 0, -m.retentionDays))
	n, err := m.usage.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Error("budget maintenance prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned usage counters", "rows", n, "before", cutoff)
	}
}
