// Package dispatch hands validated envelopes to execution exactly once.
// Every call is wrapped in the idempotency guard keyed by the envelope
// fingerprint; inside the guarded region either the durable queue or
// the inline trigger path runs, selected by one configuration flag.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/idempotency"
)

const guardNamespace = "dispatch"

type Dispatcher struct {
	Guard        *idempotency.Guard
	Queue        core.DurableQueue
	Trigger      core.TriggerClient
	QueueEnabled bool
	TaskName     string
	Logger       core.Logger
}

func NewDispatcher(guard *idempotency.Guard, cfg core.QueueConfig) *Dispatcher {
	return &Dispatcher{
		Guard:        guard,
		QueueEnabled: cfg.Enabled,
		TaskName:     cfg.TaskName,
	}
}

// Dispatch executes the envelope at most once per fingerprint. Failures
// of the underlying path are swallowed into the outcome so the caller
// always receives a definitive result; the error return is reserved for
// guard store failures and invalid input.
func (d *Dispatcher) Dispatch(ctx context.Context, envelope core.DispatchEnvelope) (core.DispatchOutcome, error) {
	if d == nil || d.Guard == nil {
		return core.DispatchOutcome{}, fmt.Errorf("dispatch: dispatcher requires an idempotency guard")
	}
	if strings.TrimSpace(envelope.SubscriptionID) == "" {
		return core.DispatchOutcome{}, fmt.Errorf("dispatch: envelope subscription id is required")
	}
	if strings.TrimSpace(envelope.ProviderEventID) == "" {
		return core.DispatchOutcome{}, fmt.Errorf("dispatch: envelope provider event id is required")
	}

	fingerprint := envelope.Fingerprint()
	outcome, err := d.Guard.ExecuteOnce(ctx, guardNamespace, fingerprint, func(ctx context.Context) (map[string]any, error) {
		if d.QueueEnabled {
			return d.enqueue(ctx, envelope)
		}
		return d.executeInline(ctx, envelope)
	})
	if err != nil {
		return core.DispatchOutcome{}, err
	}
	return d.outcomeOf(ctx, fingerprint, outcome), nil
}

func (d *Dispatcher) enqueue(ctx context.Context, envelope core.DispatchEnvelope) (map[string]any, error) {
	if d.Queue == nil {
		return nil, fmt.Errorf("dispatch: durable queue is enabled but not configured")
	}
	name := strings.TrimSpace(d.TaskName)
	if name == "" {
		return nil, fmt.Errorf("dispatch: queue task name is required")
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("dispatch: encode envelope: %w", err)
	}
	taskID, err := d.Queue.Enqueue(ctx, name, payload)
	if err != nil {
		return nil, fmt.Errorf("dispatch: enqueue task %s: %w", name, err)
	}
	return map[string]any{"path": "queue", "task_id": taskID}, nil
}

func (d *Dispatcher) executeInline(ctx context.Context, envelope core.DispatchEnvelope) (map[string]any, error) {
	if d.Trigger == nil {
		return nil, fmt.Errorf("dispatch: inline path requires a trigger client")
	}
	result, err := d.Trigger.Trigger(ctx, envelope)
	if err != nil {
		return nil, fmt.Errorf("dispatch: trigger call: %w", err)
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return nil, fmt.Errorf("dispatch: trigger returned status %d", result.StatusCode)
	}
	return map[string]any{"path": "inline", "status_code": result.StatusCode}, nil
}

func (d *Dispatcher) outcomeOf(ctx context.Context, fingerprint string, outcome idempotency.Outcome) core.DispatchOutcome {
	dispatched := core.DispatchOutcome{
		Fingerprint: fingerprint,
		Metadata:    outcome.Result,
	}
	switch {
	case outcome.Replayed:
		dispatched.Status = core.DispatchStatusDuplicate
		dispatched.Err = outcome.Err
	case outcome.State == idempotency.StateFailed:
		dispatched.Status = core.DispatchStatusFailed
		dispatched.Err = outcome.Err
		core.LogError(ctx, d.Logger, "dispatch path failed", map[string]any{
			"fingerprint": fingerprint,
			"error":       outcome.Err,
		})
	case pathOf(outcome.Result) == "queue":
		dispatched.Status = core.DispatchStatusQueued
		if id, ok := outcome.Result["task_id"].(string); ok {
			dispatched.TaskID = id
		}
	default:
		dispatched.Status = core.DispatchStatusExecuted
	}
	return dispatched
}

func pathOf(result map[string]any) string {
	if result == nil {
		return ""
	}
	path, _ := result["path"].(string)
	return path
}

var _ core.Dispatcher = (*Dispatcher)(nil)
