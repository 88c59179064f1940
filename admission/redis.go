package admission

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-ingest/core"
)

// RedisWindowLimiter is the multi-process variant of the fixed-window
// limiter: counters live in Redis so every ingest process shares the
// same per-actor budget. Keys are bucketed by window index and expire on
// their own.
type RedisWindowLimiter struct {
	Client    *redis.Client
	Limit     int
	Window    time.Duration
	KeyPrefix string
	Now       core.Clock
}

func NewRedisWindowLimiter(client *redis.Client, limit int, window time.Duration) *RedisWindowLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindowLimiter{
		Client:    client,
		Limit:     limit,
		Window:    window,
		KeyPrefix: "ingest:rate",
	}
}

func (l *RedisWindowLimiter) Allow(ctx context.Context, actorID string) (core.RateDecision, error) {
	if l == nil || l.Client == nil {
		return core.RateDecision{}, fmt.Errorf("admission: redis client is required")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return core.RateDecision{}, fmt.Errorf("admission: actor id is required")
	}

	now := l.now()
	bucket := now.Unix() / int64(l.Window/time.Second)
	key := l.KeyPrefix + ":" + actorID + ":" + strconv.FormatInt(bucket, 10)
	resetAt := time.Unix((bucket+1)*int64(l.Window/time.Second), 0).UTC()

	count, err := l.Client.Incr(ctx, key).Result()
	if err != nil {
		return core.RateDecision{}, fmt.Errorf("admission: redis incr: %w", err)
	}
	if count == 1 {
		// first hit in this bucket owns the expiry
		if err := l.Client.Expire(ctx, key, l.Window+time.Second).Err(); err != nil {
			return core.RateDecision{}, fmt.Errorf("admission: redis expire: %w", err)
		}
	}
	if count > int64(l.Limit) {
		return core.RateDecision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return core.RateDecision{
		Allowed:   true,
		Remaining: l.Limit - int(count),
		ResetAt:   resetAt,
	}, nil
}

func (l *RedisWindowLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var _ RateLimiter = (*RedisWindowLimiter)(nil)
