// Package providers defines the per-provider capability surface the
// inbound pipeline stays agnostic of: request authentication and
// handshake challenge formatting, selected by the subscription's
// provider kind.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-ingest/core"
)

// Capability is implemented once per provider variant. Authenticate
// verifies a delivery against the subscription's provider config; an
// unconfigured check is a no-op pass. FormatChallenge answers provider
// handshake requests without touching application state.
type Capability interface {
	Kind() core.ProviderKind
	Authenticate(ctx context.Context, sub core.Subscription, req core.InboundRequest) error
	FormatChallenge(req core.InboundRequest) (core.InboundResult, bool)
}

// ResponseShaper is an optional capability: providers that expect a
// particular success payload shape implement it and the pipeline
// consults it only at the terminal step.
type ResponseShaper interface {
	ShapeResponse(result core.InboundResult) core.InboundResult
}

type Registry struct {
	mu           sync.RWMutex
	capabilities map[core.ProviderKind]Capability
	order        []core.ProviderKind
}

func NewRegistry(capabilities ...Capability) (*Registry, error) {
	registry := &Registry{capabilities: map[core.ProviderKind]Capability{}}
	for _, capability := range capabilities {
		if err := registry.Register(capability); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(capability Capability) error {
	if r == nil {
		return fmt.Errorf("providers: registry is nil")
	}
	if capability == nil {
		return fmt.Errorf("providers: capability is required")
	}
	kind := core.NormalizeProviderKind(string(capability.Kind()))
	if kind == "" {
		return fmt.Errorf("providers: capability kind is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.capabilities[kind]; exists {
		return fmt.Errorf("providers: capability already registered for kind %q", kind)
	}
	r.capabilities[kind] = capability
	r.order = append(r.order, kind)
	return nil
}

func (r *Registry) Resolve(kind core.ProviderKind) (Capability, error) {
	if r == nil {
		return nil, fmt.Errorf("providers: registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	capability, exists := r.capabilities[core.NormalizeProviderKind(string(kind))]
	if !exists {
		return nil, fmt.Errorf("providers: no capability registered for kind %q", kind)
	}
	return capability, nil
}

// Challenge asks each registered capability, in registration order,
// whether the request is a provider handshake. The first recognizer
// wins.
func (r *Registry) Challenge(req core.InboundRequest) (core.InboundResult, bool) {
	if r == nil {
		return core.InboundResult{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, kind := range r.order {
		if result, ok := r.capabilities[kind].FormatChallenge(req); ok {
			return result, true
		}
	}
	return core.InboundResult{}, false
}
