// Package admission gates dispatch attempts behind per-actor rate and
// usage ceilings. Decisions are transient verdicts computed per attempt;
// ownership of the underlying limits lies with the configured limiters.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
)

const (
	ReasonNoActor       = "no_actor"
	ReasonRateLimited   = "rate_limited"
	ReasonUsageExceeded = "usage_exceeded"
)

type RateLimiter interface {
	Allow(ctx context.Context, actorID string) (core.RateDecision, error)
}

type UsageLimiter interface {
	Check(ctx context.Context, actorID string) (core.UsageDecision, error)
}

// Decision is the controller verdict for one dispatch attempt. A denial
// carries the reason so the pipeline can soft-accept without dispatch.
type Decision struct {
	Allowed bool
	ActorID string
	Reason  string
	Rate    *core.RateDecision
	Usage   *core.UsageDecision
}

type Controller struct {
	Resolver core.ActorResolver
	Rate     RateLimiter
	Usage    UsageLimiter
	Logger   core.Logger
}

func NewController(resolver core.ActorResolver, rate RateLimiter, usage UsageLimiter) *Controller {
	return &Controller{
		Resolver: resolver,
		Rate:     rate,
		Usage:    usage,
	}
}

// Admit resolves the attributed actor for the subscription, then
// consults the rate limit and usage limit in sequence. Limiter
// infrastructure failures return an error; the caller decides whether
// to fail open or soft-accept.
func (c *Controller) Admit(ctx context.Context, sub core.Subscription) (Decision, error) {
	if c == nil {
		return Decision{}, fmt.Errorf("admission: controller is nil")
	}

	actorID, err := c.resolveActor(ctx, sub)
	if err != nil {
		if errors.Is(err, core.ErrActorNotResolved) {
			return Decision{Allowed: false, Reason: ReasonNoActor}, nil
		}
		return Decision{}, admissionCheckFailed(err, "actor resolution failed", map[string]any{
			"subscription_id": sub.ID,
		})
	}

	decision := Decision{Allowed: true, ActorID: actorID}
	if c.Rate != nil {
		rate, err := c.Rate.Allow(ctx, actorID)
		if err != nil {
			return Decision{}, admissionCheckFailed(err, "rate limit check failed", map[string]any{
				"actor_id": actorID,
			})
		}
		decision.Rate = &rate
		if !rate.Allowed {
			decision.Allowed = false
			decision.Reason = ReasonRateLimited
			core.LogInfo(ctx, c.Logger, "dispatch denied by rate limit", map[string]any{
				"actor_id":  actorID,
				"remaining": rate.Remaining,
				"reset_at":  rate.ResetAt,
			})
			return decision, nil
		}
	}
	if c.Usage != nil {
		usage, err := c.Usage.Check(ctx, actorID)
		if err != nil {
			return Decision{}, admissionCheckFailed(err, "usage limit check failed", map[string]any{
				"actor_id": actorID,
			})
		}
		decision.Usage = &usage
		if !usage.Allowed {
			decision.Allowed = false
			decision.Reason = ReasonUsageExceeded
			core.LogInfo(ctx, c.Logger, "dispatch denied by usage limit", map[string]any{
				"actor_id": actorID,
				"current":  usage.Current,
				"limit":    usage.Limit,
			})
			return decision, nil
		}
	}
	return decision, nil
}

func (c *Controller) resolveActor(ctx context.Context, sub core.Subscription) (string, error) {
	if c.Resolver != nil {
		actorID, err := c.Resolver.ResolveActor(ctx, sub)
		if err != nil {
			return "", err
		}
		actorID = strings.TrimSpace(actorID)
		if actorID == "" {
			return "", core.ErrActorNotResolved
		}
		return actorID, nil
	}
	actorID := strings.TrimSpace(sub.ActorID)
	if actorID == "" {
		return "", core.ErrActorNotResolved
	}
	return actorID, nil
}
