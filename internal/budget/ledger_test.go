package budget

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/store/memory"
)

func testLedger(t *testing.T) (*Ledger, uuid.UUID) {
	t.Helper()
	st := memory.NewStores()
	cfg := config.BudgetConfig{
		DailyLimit:        5.0,
		PerUserLimit:      0.50,
		CriticalThreshold: 0.05,
	}
	return NewLedger(st.Usage, cfg), uuid.Must(uuid.NewV7())
}

func TestRemainingStartsAtLimits(t *testing.T) {
	l, user := testLedger(t)

	r, err := l.Remaining(context.Background(), user)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if r.Daily != 5.0 {
		t.Errorf("Daily = %v, want 5.0", r.Daily)
	}
	if r.PerUser != 0.50 {
		t.Errorf("PerUser = %v, want 0.50", r.PerUser)
	}
	if l.Exhausted(r) || l.Critical(r) {
		t.Error("fresh ledger should be neither exhausted nor critical")
	}
}

func TestRecordReducesHeadroom(t *testing.T) {
	l, user := testLedger(t)
	ctx := context.Background()

	if err := l.Record(ctx, user, 0.10); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, user, 0.15); err != nil {
		t.Fatalf("Record: %v", err)
	}

	r, err := l.Remaining(ctx, user)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if got, want := r.PerUser, 0.25; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("PerUser = %v, want %v", got, want)
	}
	if got, want := r.Daily, 4.75; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("Daily = %v, want %v", got, want)
	}
}

func TestRemainingClampsAtZero(t *testing.T) {
	l, user := testLedger(t)
	ctx := context.Background()

	// One in-flight call can overshoot the ceiling; headroom must not
	// go negative.
	if err := l.Record(ctx, user, 0.80); err != nil {
		t.Fatalf("Record: %v", err)
	}

	r, err := l.Remaining(ctx, user)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if r.PerUser != 0 {
		t.Errorf("PerUser = %v, want 0", r.PerUser)
	}
	if !l.Exhausted(r) {
		t.Error("Exhausted = false, want true after overshoot")
	}
}

func TestCriticalThreshold(t *testing.T) {
	l, user := testLedger(t)
	ctx := context.Background()

	if err := l.Record(ctx, user, 0.46); err != nil {
		t.Fatalf("Record: %v", err)
	}

	r, err := l.Remaining(ctx, user)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if !l.Critical(r) {
		t.Errorf("Critical = false with %v remaining, want true below 0.05", r.Min())
	}
	if l.Exhausted(r) {
		t.Error("Exhausted = true, want false while headroom remains")
	}
}

func TestRecordIgnoresNonPositiveCost(t *testing.T) {
	l, user := testLedger(t)
	ctx := context.Background()

	if err := l.Record(ctx, user, 0); err != nil {
		t.Fatalf("Record(0): %v", err)
	}
	if err := l.Record(ctx, user, -1); err != nil {
		t.Fatalf("Record(-1): %v", err)
	}

	r, _ := l.Remaining(ctx, user)
	if r.PerUser != 0.50 {
		t.Errorf("PerUser = %v, want untouched 0.50", r.PerUser)
	}
}

func TestDailyRollover(t *testing.T) {
	l, user := testLedger(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)
	l.WithClock(func() time.Time { return day1 })
	if err := l.Record(ctx, user, 0.50); err != nil {
		t.Fatalf("Record: %v", err)
	}
	r, _ := l.Remaining(ctx, user)
	if !l.Exhausted(r) {
		t.Fatal("user should be exhausted on day one")
	}

	// Counters are keyed by UTC date, so crossing midnight resets
	// headroom with no cleanup step.
	l.WithClock(func() time.Time { return day1.Add(2 * time.Hour) })
	r, _ = l.Remaining(ctx, user)
	if l.Exhausted(r) {
		t.Error("headroom should reset on the next UTC day")
	}
	if r.PerUser != 0.50 {
		t.Errorf("PerUser = %v, want 0.50 after rollover", r.PerUser)
	}
}

func TestRemainingMin(t *testing.T) {
	tests := []struct {
		name string
		r    Remaining
		want float64
	}{
		{"per-user binds", Remaining{Daily: 4.0, PerUser: 0.2}, 0.2},
		{"daily binds", Remaining{Daily: 0.1, PerUser: 0.5}, 0.1},
		{"equal", Remaining{Daily: 1.0, PerUser: 1.0}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Min(); got != tt.want {
				t.Errorf("Min = %v, want %v", got, tt.want)
			}
		})
	}
}
