package ingest

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedSenders = 4096

// SenderLimiter enforces a minimum interval between messages from the
// same sender. Concurrent deliveries inside the window are rejected, not
// queued — strict ordering is traded for simplicity and for blunting
// burst/spam cost exposure. Process-local and reset on restart; that is
// acceptable because it is best-effort throttling, not correctness state.
type SenderLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*senderEntry
}

type senderEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewSenderLimiter(minInterval time.Duration) *SenderLimiter {
	if minInterval <= 0 {
		minInterval = 2 * time.Second
	}
	return &SenderLimiter{
		interval: minInterval,
		limiters: make(map[string]*senderEntry),
	}
}

// Allow reports whether the sender may proceed now.
func (l *SenderLimiter) Allow(senderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	// Cap tracked senders to bound memory against rotating sender ids.
	if len(l.limiters) >= maxTrackedSenders {
		stale := now.Add(-10 * l.interval)
		for id, e := range l.limiters {
			if e.lastSeen.Before(stale) {
				delete(l.limiters, id)
			}
		}
		for len(l.limiters) >= maxTrackedSenders {
			for id := range l.limiters {
				delete(l.limiters, id)
				break
			}
		}
	}

	e, ok := l.limiters[senderID]
	if !ok {
		e = &senderEntry{lim: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.limiters[senderID] = e
	}
	e.lastSeen = now
	return e.lim.Allow()
}

// RetryAfter returns the interval to advertise to throttled callers.
func (l *SenderLimiter) RetryAfter() time.Duration {
	return l.interval
}
