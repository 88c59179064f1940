// Package pipeline runs one inbound HTTP delivery through the ordered
// stage sequence: parse, provider challenge, subscription resolution,
// authentication, admission control, dispatch. Stages short-circuit
// with terminal responses; admission denials and dispatch failures end
// as soft-accepts so the provider does not retry-storm.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-ingest/admission"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/providers"
)

type Pipeline struct {
	Registry      *providers.Registry
	Subscriptions core.SubscriptionStore
	Admission     *admission.Controller
	Dispatcher    core.Dispatcher
	Logger        core.Logger
	Metrics       core.MetricsRecorder
	Now           core.Clock
}

func New(
	registry *providers.Registry,
	subscriptions core.SubscriptionStore,
	controller *admission.Controller,
	dispatcher core.Dispatcher,
) *Pipeline {
	return &Pipeline{
		Registry:      registry,
		Subscriptions: subscriptions,
		Admission:     controller,
		Dispatcher:    dispatcher,
	}
}

// Handle runs the stage sequence for one delivery and always returns a
// terminal result. Only configuration mistakes surface as errors.
func (p *Pipeline) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Registry == nil || p.Subscriptions == nil || p.Dispatcher == nil {
		return core.InboundResult{}, fmt.Errorf("pipeline: registry, subscription store, and dispatcher are required")
	}

	parsed, err := parseBody(req.Body, req.Header("Content-Type"))
	if err != nil {
		return errorResult(pipelineBadInput(err.Error())), nil
	}

	if result, ok := p.Registry.Challenge(req); ok {
		p.count(ctx, "ingest.inbound.challenge", req.ProviderKind)
		return result, nil
	}

	sub, result, ok := p.resolve(ctx, req)
	if !ok {
		return result, nil
	}

	capability, err := p.Registry.Resolve(sub.ProviderKind)
	if err != nil {
		return errorResult(pipelineNotFound("unsupported provider")), nil
	}
	if err := capability.Authenticate(ctx, sub, req); err != nil {
		core.LogError(ctx, p.Logger, "inbound authentication failed", map[string]any{
			"subscription_id": sub.ID,
			"provider_kind":   string(sub.ProviderKind),
			"error":           err.Error(),
		})
		p.count(ctx, "ingest.inbound.unauthorized", sub.ProviderKind)
		return errorResult(pipelineUnauthorized(err, "unauthorized")), nil
	}

	actorID, result, ok := p.admit(ctx, sub, capability)
	if !ok {
		return result, nil
	}
	if actorID != "" {
		sub.ActorID = actorID
	}

	outcome := p.dispatch(ctx, sub, parsed)
	p.advanceCursor(ctx, sub, parsed)
	p.count(ctx, "ingest.inbound.accepted", sub.ProviderKind)
	return shape(capability, acceptedResult(outcome)), nil
}

func (p *Pipeline) resolve(ctx context.Context, req core.InboundRequest) (core.Subscription, core.InboundResult, bool) {
	var (
		sub core.Subscription
		err error
	)
	switch {
	case strings.TrimSpace(req.SubscriptionID) != "":
		sub, err = p.Subscriptions.GetByID(ctx, strings.TrimSpace(req.SubscriptionID))
	case strings.TrimSpace(req.Route) != "":
		sub, err = p.Subscriptions.GetByRoute(ctx, strings.TrimSpace(req.Route))
	default:
		return core.Subscription{}, errorResult(pipelineNotFound("subscription not found")), false
	}
	if err != nil {
		if !errors.Is(err, core.ErrSubscriptionNotFound) {
			core.LogError(ctx, p.Logger, "subscription lookup failed", map[string]any{
				"subscription_id": req.SubscriptionID,
				"route":           req.Route,
				"error":           err.Error(),
			})
		}
		return core.Subscription{}, errorResult(pipelineNotFound("subscription not found")), false
	}
	if !sub.IsActive() {
		return core.Subscription{}, errorResult(pipelineNotFound("subscription not found")), false
	}
	return sub, core.InboundResult{}, true
}

// admit consults admission control. Denials and limiter infrastructure
// failures both end as soft-accepts with zero dispatch side effects. On
// success the resolved actor id is returned so the dispatch envelope
// carries the attributed actor, not whatever the subscription held.
func (p *Pipeline) admit(
	ctx context.Context,
	sub core.Subscription,
	capability providers.Capability,
) (string, core.InboundResult, bool) {
	if p.Admission == nil {
		return "", core.InboundResult{}, true
	}
	decision, err := p.Admission.Admit(ctx, sub)
	if err != nil {
		core.LogError(ctx, p.Logger, "admission check failed, soft-accepting without dispatch", map[string]any{
			"subscription_id": sub.ID,
			"error":           err.Error(),
		})
		return "", shape(capability, softAcceptResult("admission_unavailable")), false
	}
	if !decision.Allowed {
		p.count(ctx, "ingest.inbound.admission_denied", sub.ProviderKind)
		return "", shape(capability, softAcceptResult(decision.Reason)), false
	}
	return decision.ActorID, core.InboundResult{}, true
}

func (p *Pipeline) dispatch(ctx context.Context, sub core.Subscription, parsed parsedBody) core.DispatchOutcome {
	envelope := core.DispatchEnvelope{
		SubscriptionID:  sub.ID,
		ActorID:         sub.ActorID,
		ProviderKind:    sub.ProviderKind,
		ProviderEventID: eventID(parsed),
		Payload:         parsed.JSON,
		TargetMode:      sub.Target.Mode,
		Target:          sub.Target,
		DiscoveredAt:    core.ResolveClock(p.Now)(),
	}
	outcome, err := p.Dispatcher.Dispatch(ctx, envelope)
	if err != nil {
		core.LogError(ctx, p.Logger, "dispatch failed, soft-accepting", map[string]any{
			"subscription_id": sub.ID,
			"error":           err.Error(),
		})
		return core.DispatchOutcome{
			Status:      core.DispatchStatusFailed,
			Fingerprint: envelope.Fingerprint(),
			Err:         err.Error(),
		}
	}
	return outcome
}

// advanceCursor persists a change token embedded in a push delivery so
// the next poll starts past it. Failures are logged only.
func (p *Pipeline) advanceCursor(ctx context.Context, sub core.Subscription, parsed parsedBody) {
	token := stringField(parsed.Fields, "change_token", "history_id")
	if token == "" {
		return
	}
	now := core.ResolveClock(p.Now)()
	cursor := core.PollCursor{
		LastCheckedAt: &now,
		ChangeToken:   core.MaxChangeToken(sub.Cursor.ChangeToken, token),
	}
	if err := p.Subscriptions.AdvanceCursor(ctx, sub.ID, cursor); err != nil {
		core.LogError(ctx, p.Logger, "cursor advance failed", map[string]any{
			"subscription_id": sub.ID,
			"change_token":    token,
			"error":           err.Error(),
		})
	}
}

// eventID extracts the provider-native event id from the payload. A
// payload with no recognizable id falls back to a digest of the
// document so redeliveries of identical bodies still deduplicate.
func eventID(parsed parsedBody) string {
	if id := stringField(parsed.Fields, "event_id", "id", "event.id", "message_id"); id != "" {
		return id
	}
	sum := sha256.Sum256(parsed.JSON)
	return hex.EncodeToString(sum[:])
}

func shape(capability providers.Capability, result core.InboundResult) core.InboundResult {
	if shaper, ok := capability.(providers.ResponseShaper); ok {
		return shaper.ShapeResponse(result)
	}
	return result
}

func acceptedResult(outcome core.DispatchOutcome) core.InboundResult {
	body, _ := json.Marshal(map[string]any{
		"ok":     true,
		"status": string(outcome.Status),
	})
	return core.InboundResult{
		Accepted:    true,
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
		Metadata: map[string]any{
			"dispatch_status": string(outcome.Status),
			"fingerprint":     outcome.Fingerprint,
		},
	}
}

// softAcceptResult is success-shaped so the provider does not retry,
// even though nothing was dispatched.
func softAcceptResult(reason string) core.InboundResult {
	body, _ := json.Marshal(map[string]any{"ok": true, "reason": reason})
	return core.InboundResult{
		Accepted:    true,
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
		Metadata:    map[string]any{"soft_accept": true, "reason": reason},
	}
}

// errorResult terminates the pipeline with the go-errors envelope: the
// category decides the HTTP status and the text code lands in the body.
func errorResult(err error) core.InboundResult {
	mapped := core.IngestErrorMapper(err)
	body, _ := json.Marshal(map[string]any{
		"ok":    false,
		"error": mapped.Message,
		"code":  mapped.TextCode,
	})
	return core.InboundResult{
		Accepted:    false,
		StatusCode:  mapped.Code,
		ContentType: "application/json",
		Body:        body,
	}
}

func (p *Pipeline) count(ctx context.Context, name string, kind core.ProviderKind) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.IncCounter(ctx, name, 1, map[string]string{"provider_kind": string(kind)})
}
