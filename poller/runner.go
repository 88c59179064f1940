// Package poller drives the pull-side ingestion cycle: it lists active
// subscriptions, fetches changed items per subscription under a hard
// concurrency ceiling, dispatches each discovered item, and advances
// the stored cursor once per subscription.
package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-ingest/core"
)

const (
	defaultConcurrency = 10
	defaultCallTimeout = 30 * time.Second
)

// Runner executes one poll cycle across every active subscription of a
// provider kind. Subscriptions are isolated: a panic or failure in one
// is recorded in its result and never stops the run.
type Runner struct {
	Subscriptions core.SubscriptionStore
	Source        core.ChangeSource
	Dispatcher    core.Dispatcher
	Concurrency   int
	CallTimeout   time.Duration
	Logger        core.Logger
	Metrics       core.MetricsRecorder
	Now           core.Clock
}

func NewRunner(
	subscriptions core.SubscriptionStore,
	source core.ChangeSource,
	dispatcher core.Dispatcher,
	cfg core.PollerConfig,
) *Runner {
	return &Runner{
		Subscriptions: subscriptions,
		Source:        source,
		Dispatcher:    dispatcher,
		Concurrency:   cfg.Concurrency,
		CallTimeout:   cfg.CallTimeout,
	}
}

// PollAll runs one cycle for every active subscription of the kind. At
// most Concurrency subscription tasks are in flight at any instant;
// completion order is unordered across subscriptions.
func (r *Runner) PollAll(ctx context.Context, kind core.ProviderKind) (core.PollSummary, error) {
	if r == nil || r.Subscriptions == nil || r.Source == nil || r.Dispatcher == nil {
		return core.PollSummary{}, fmt.Errorf("poller: subscription store, change source, and dispatcher are required")
	}

	startedAt := core.ResolveClock(r.Now)()
	summary := core.PollSummary{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
	}

	subs, err := r.Subscriptions.ListActive(ctx, kind)
	if err != nil {
		return core.PollSummary{}, fmt.Errorf("poller: list active subscriptions: %w", err)
	}
	summary.Total = len(subs)
	if len(subs) == 0 {
		summary.Duration = core.ResolveClock(r.Now)().Sub(startedAt)
		return summary, nil
	}

	results := make([]core.SubscriptionPollResult, len(subs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency())
	for i, sub := range subs {
		group.Go(func() error {
			results[i] = r.pollOne(groupCtx, sub)
			return nil
		})
	}
	_ = group.Wait()

	for _, result := range results {
		if result.Status == core.PollStatusOK {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	summary.Results = results
	summary.Duration = core.ResolveClock(r.Now)().Sub(startedAt)

	core.LogInfo(ctx, r.Logger, "poll run finished", map[string]any{
		"run_id":     summary.RunID,
		"kind":       string(kind),
		"total":      summary.Total,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"duration":   summary.Duration.String(),
	})
	if r.Metrics != nil {
		r.Metrics.IncCounter(ctx, "ingest.poll.subscriptions", int64(summary.Total), map[string]string{"kind": string(kind)})
		r.Metrics.ObserveHistogram(ctx, "ingest.poll.duration_seconds", summary.Duration.Seconds(), map[string]string{"kind": string(kind)})
	}
	return summary, nil
}

// pollOne runs to completion for a single subscription; its concurrency
// slot is released only when it returns. All failures, including
// panics, land in the result.
func (r *Runner) pollOne(ctx context.Context, sub core.Subscription) (result core.SubscriptionPollResult) {
	result = core.SubscriptionPollResult{
		SubscriptionID: sub.ID,
		Status:         core.PollStatusOK,
		Cursor:         sub.Cursor,
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			result.Status = core.PollStatusFailed
			result.Error = fmt.Sprintf("panic: %v", recovered)
			core.LogError(ctx, r.Logger, "subscription poll panicked", map[string]any{
				"subscription_id": sub.ID,
				"panic":           fmt.Sprintf("%v", recovered),
			})
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, r.callTimeout())
	batch, err := r.Source.FetchChanges(fetchCtx, sub)
	cancel()
	if err != nil {
		result.Status = core.PollStatusFailed
		result.Error = err.Error()
		core.LogError(ctx, r.Logger, "subscription poll failed", map[string]any{
			"subscription_id": sub.ID,
			"error":           err.Error(),
		})
		return result
	}

	result.Discovered = len(batch.Items)
	for _, item := range batch.Items {
		outcome, err := r.Dispatcher.Dispatch(ctx, envelopeOf(sub, item))
		if err != nil {
			core.LogError(ctx, r.Logger, "item dispatch failed", map[string]any{
				"subscription_id":   sub.ID,
				"provider_event_id": item.ProviderEventID,
				"error":             err.Error(),
			})
			continue
		}
		if outcome.Status == core.DispatchStatusQueued || outcome.Status == core.DispatchStatusExecuted {
			result.Dispatched++
		}
	}

	if err := r.advance(ctx, sub, batch.NextCursor); err != nil {
		result.Status = core.PollStatusFailed
		result.Error = err.Error()
		return result
	}
	result.Cursor = batch.NextCursor
	return result
}

// advance persists the batch cursor once per subscription. The change
// token never regresses even if the source handed back a stale one.
func (r *Runner) advance(ctx context.Context, sub core.Subscription, cursor core.PollCursor) error {
	cursor.ChangeToken = core.MaxChangeToken(sub.Cursor.ChangeToken, cursor.ChangeToken)
	if err := r.Subscriptions.AdvanceCursor(ctx, sub.ID, cursor); err != nil {
		core.LogError(ctx, r.Logger, "cursor advance failed", map[string]any{
			"subscription_id": sub.ID,
			"change_token":    cursor.ChangeToken,
			"error":           err.Error(),
		})
		return fmt.Errorf("poller: advance cursor for %s: %w", sub.ID, err)
	}
	return nil
}

func envelopeOf(sub core.Subscription, item core.InboundEvent) core.DispatchEnvelope {
	return core.DispatchEnvelope{
		SubscriptionID:  sub.ID,
		ActorID:         strings.TrimSpace(sub.ActorID),
		ProviderKind:    sub.ProviderKind,
		ProviderEventID: item.ProviderEventID,
		Payload:         item.Payload,
		TargetMode:      sub.Target.Mode,
		Target:          sub.Target,
		DiscoveredAt:    item.DiscoveredAt,
	}
}

func (r *Runner) concurrency() int {
	if r != nil && r.Concurrency > 0 {
		return r.Concurrency
	}
	return defaultConcurrency
}

func (r *Runner) callTimeout() time.Duration {
	if r != nil && r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return defaultCallTimeout
}
