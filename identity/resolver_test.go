package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-ingest/core"
)

func TestResolver_ExplicitActorWins(t *testing.T) {
	resolver := NewResolver("")
	sub := core.Subscription{ID: "sub-1", ActorID: " actor-1 "}

	actorID, err := resolver.ResolveActor(context.Background(), sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actorID != "actor-1" {
		t.Fatalf("unexpected actor %q", actorID)
	}
}

func TestResolver_MetadataFallback(t *testing.T) {
	resolver := NewResolver("")
	sub := core.Subscription{
		ID:       "sub-1",
		Metadata: map[string]any{"actor_id": "actor-2"},
	}

	actorID, err := resolver.ResolveActor(context.Background(), sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actorID != "actor-2" {
		t.Fatalf("unexpected actor %q", actorID)
	}
}

func TestResolver_DirectoryLookupCached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if got := r.URL.Query().Get("credential_ref"); got != "cred-1" {
			t.Fatalf("unexpected credential ref %q", got)
		}
		_, _ = w.Write([]byte(`{"actor_id":"actor-3"}`))
	}))
	defer server.Close()

	resolver := NewResolver(server.URL)
	resolver.HTTP = server.Client()
	sub := core.Subscription{ID: "sub-1", CredentialRef: "cred-1"}

	actorID, err := resolver.ResolveActor(context.Background(), sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actorID != "actor-3" {
		t.Fatalf("unexpected actor %q", actorID)
	}

	if _, err := resolver.ResolveActor(context.Background(), sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one directory call, got %d", got)
	}
}

func TestResolver_CacheExpires(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"actor_id":"actor-3"}`))
	}))
	defer server.Close()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver := NewResolver(server.URL)
	resolver.HTTP = server.Client()
	resolver.CacheTTL = time.Minute
	resolver.Now = func() time.Time { return current }

	sub := core.Subscription{ID: "sub-1", CredentialRef: "cred-1"}
	if _, err := resolver.ResolveActor(context.Background(), sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := resolver.ResolveActor(context.Background(), sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected refreshed lookup, got %d calls", got)
	}
}

func TestResolver_MissReportsNotResolved(t *testing.T) {
	resolver := NewResolver("")
	sub := core.Subscription{ID: "sub-1"}

	_, err := resolver.ResolveActor(context.Background(), sub)
	if !errors.Is(err, core.ErrActorNotResolved) {
		t.Fatalf("expected ErrActorNotResolved, got %v", err)
	}
}

func TestResolver_DirectoryFailureReportsNotResolved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resolver := NewResolver(server.URL)
	resolver.HTTP = server.Client()
	sub := core.Subscription{ID: "sub-1", CredentialRef: "cred-1"}

	_, err := resolver.ResolveActor(context.Background(), sub)
	if !errors.Is(err, core.ErrActorNotResolved) {
		t.Fatalf("expected ErrActorNotResolved, got %v", err)
	}
}
