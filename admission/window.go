package admission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingest/core"
)

type windowState struct {
	startedAt time.Time
	count     int
}

// FixedWindowLimiter is an in-process fixed-window rate limiter keyed by
// actor. One actor exhausting its window never blocks another actor.
type FixedWindowLimiter struct {
	Limit  int
	Window time.Duration
	Now    core.Clock

	mu      sync.Mutex
	windows map[string]windowState
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindowLimiter{
		Limit:   limit,
		Window:  window,
		windows: map[string]windowState{},
	}
}

func (l *FixedWindowLimiter) Allow(_ context.Context, actorID string) (core.RateDecision, error) {
	if l == nil {
		return core.RateDecision{}, fmt.Errorf("admission: rate limiter is nil")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return core.RateDecision{}, fmt.Errorf("admission: actor id is required")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	state, exists := l.windows[actorID]
	if !exists || !now.Before(state.startedAt.Add(l.Window)) {
		state = windowState{startedAt: now}
	}
	resetAt := state.startedAt.Add(l.Window)
	if state.count >= l.Limit {
		l.windows[actorID] = state
		return core.RateDecision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	state.count++
	l.windows[actorID] = state
	return core.RateDecision{
		Allowed:   true,
		Remaining: l.Limit - state.count,
		ResetAt:   resetAt,
	}, nil
}

func (l *FixedWindowLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// MeteredUsageLimiter counts dispatch attempts per actor against a flat
// ceiling. Check consumes one unit when allowed; exhausted actors are
// denied without affecting siblings.
type MeteredUsageLimiter struct {
	Limit int64

	mu     sync.Mutex
	counts map[string]int64
}

func NewMeteredUsageLimiter(limit int64) *MeteredUsageLimiter {
	if limit <= 0 {
		limit = 10_000
	}
	return &MeteredUsageLimiter{
		Limit:  limit,
		counts: map[string]int64{},
	}
}

func (l *MeteredUsageLimiter) Check(_ context.Context, actorID string) (core.UsageDecision, error) {
	if l == nil {
		return core.UsageDecision{}, fmt.Errorf("admission: usage limiter is nil")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return core.UsageDecision{}, fmt.Errorf("admission: actor id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.counts[actorID]
	if current >= l.Limit {
		return core.UsageDecision{Allowed: false, Current: current, Limit: l.Limit}, nil
	}
	current++
	l.counts[actorID] = current
	return core.UsageDecision{Allowed: true, Current: current, Limit: l.Limit}, nil
}

var _ RateLimiter = (*FixedWindowLimiter)(nil)
var _ UsageLimiter = (*MeteredUsageLimiter)(nil)
