package providers

import (
	"context"
	"testing"

	"github.com/goliatone/go-ingest/core"
)

type stubCapability struct {
	kind      core.ProviderKind
	challenge *core.InboundResult
}

func (s stubCapability) Kind() core.ProviderKind { return s.kind }

func (s stubCapability) Authenticate(context.Context, core.Subscription, core.InboundRequest) error {
	return nil
}

func (s stubCapability) FormatChallenge(core.InboundRequest) (core.InboundResult, bool) {
	if s.challenge == nil {
		return core.InboundResult{}, false
	}
	return *s.challenge, true
}

func TestRegistry_ResolveByKind(t *testing.T) {
	registry, err := NewRegistry(
		stubCapability{kind: core.ProviderKindSlack},
		stubCapability{kind: core.ProviderKindGeneric},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	capability, err := registry.Resolve(core.ProviderKindSlack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capability.Kind() != core.ProviderKindSlack {
		t.Fatalf("resolved wrong capability: %s", capability.Kind())
	}

	if _, err := registry.Resolve(core.ProviderKindMailbox); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestRegistry_RejectsDuplicateKind(t *testing.T) {
	registry, err := NewRegistry(stubCapability{kind: core.ProviderKindSlack})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Register(stubCapability{kind: core.ProviderKindSlack}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_ChallengeUsesRegistrationOrder(t *testing.T) {
	first := core.InboundResult{Accepted: true, StatusCode: 200, Body: []byte("first")}
	second := core.InboundResult{Accepted: true, StatusCode: 200, Body: []byte("second")}

	registry, err := NewRegistry(
		stubCapability{kind: core.ProviderKindSlack, challenge: &first},
		stubCapability{kind: core.ProviderKindGeneric, challenge: &second},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, ok := registry.Challenge(core.InboundRequest{})
	if !ok {
		t.Fatal("expected a challenge match")
	}
	if string(result.Body) != "first" {
		t.Fatalf("expected first registered capability to win, got %q", result.Body)
	}
}

func TestRegistry_ChallengeNoMatch(t *testing.T) {
	registry, err := NewRegistry(stubCapability{kind: core.ProviderKindGeneric})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := registry.Challenge(core.InboundRequest{}); ok {
		t.Fatal("expected no challenge match")
	}
}
