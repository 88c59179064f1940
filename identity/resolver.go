// Package identity resolves the attributed actor for a subscription:
// the account billed and rate limited for its dispatches. Resolution
// prefers explicit configuration and falls back to a directory lookup,
// cached per subscription.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-ingest/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultCacheTTL       = 5 * time.Minute

	maxDirectoryResponseBytes = 1 << 20 // 1 MiB
)

type cachedActor struct {
	actorID   string
	expiresAt time.Time
}

// Resolver maps subscriptions to actor ids. Order: the subscription's
// own ActorID, an actor_id metadata entry, then the directory service
// keyed by credential reference. A miss everywhere reports
// core.ErrActorNotResolved, never an infrastructure error.
type Resolver struct {
	DirectoryURL string
	HTTP         core.HTTPDoer
	Timeout      time.Duration
	CacheTTL     time.Duration
	Logger       core.Logger
	Now          core.Clock

	mu    sync.Mutex
	cache map[string]cachedActor
}

func NewResolver(directoryURL string) *Resolver {
	return &Resolver{
		DirectoryURL: strings.TrimSpace(directoryURL),
		Timeout:      defaultRequestTimeout,
		CacheTTL:     defaultCacheTTL,
		cache:        map[string]cachedActor{},
	}
}

func (r *Resolver) ResolveActor(ctx context.Context, sub core.Subscription) (string, error) {
	if r == nil {
		return "", fmt.Errorf("identity: resolver is nil")
	}
	if actorID := strings.TrimSpace(sub.ActorID); actorID != "" {
		return actorID, nil
	}
	if actorID := metadataActor(sub.Metadata); actorID != "" {
		return actorID, nil
	}

	credentialRef := strings.TrimSpace(sub.CredentialRef)
	if credentialRef == "" || strings.TrimSpace(r.DirectoryURL) == "" {
		return "", core.ErrActorNotResolved
	}

	if actorID, ok := r.lookup(credentialRef); ok {
		return actorID, nil
	}

	actorID, err := r.queryDirectory(ctx, credentialRef)
	if err != nil {
		core.LogError(ctx, r.Logger, "actor directory lookup failed", map[string]any{
			"subscription_id": sub.ID,
			"credential_ref":  credentialRef,
			"error":           err.Error(),
		})
		return "", core.ErrActorNotResolved
	}
	r.store(credentialRef, actorID)
	return actorID, nil
}

func metadataActor(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	if value, ok := metadata["actor_id"].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func (r *Resolver) lookup(credentialRef string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return "", false
	}
	cached, ok := r.cache[credentialRef]
	if !ok {
		return "", false
	}
	if !cached.expiresAt.After(core.ResolveClock(r.Now)()) {
		delete(r.cache, credentialRef)
		return "", false
	}
	return cached.actorID, true
}

func (r *Resolver) store(credentialRef string, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = map[string]cachedActor{}
	}
	r.cache[credentialRef] = cachedActor{
		actorID:   actorID,
		expiresAt: core.ResolveClock(r.Now)().Add(r.cacheTTL()),
	}
}

type directoryResponse struct {
	ActorID string `json:"actor_id"`
}

func (r *Resolver) queryDirectory(ctx context.Context, credentialRef string) (string, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(r.DirectoryURL), "/") +
		"/actors?credential_ref=" + url.QueryEscape(credentialRef)

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "identity: build directory request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := r.doer().Do(req)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "identity: directory call")
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusNotFound {
		return "", goerrors.New("identity: actor not found", goerrors.CategoryNotFound)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", goerrors.New(
			fmt.Sprintf("identity: directory returned status %d", res.StatusCode),
			goerrors.CategoryExternal,
		)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxDirectoryResponseBytes))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "identity: read directory response")
	}
	var parsed directoryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "identity: decode directory response")
	}
	actorID := strings.TrimSpace(parsed.ActorID)
	if actorID == "" {
		return "", goerrors.New("identity: directory response has no actor id", goerrors.CategoryNotFound)
	}
	return actorID, nil
}

func (r *Resolver) timeout() time.Duration {
	if r != nil && r.Timeout > 0 {
		return r.Timeout
	}
	return defaultRequestTimeout
}

func (r *Resolver) cacheTTL() time.Duration {
	if r != nil && r.CacheTTL > 0 {
		return r.CacheTTL
	}
	return defaultCacheTTL
}

func (r *Resolver) doer() core.HTTPDoer {
	if r != nil && r.HTTP != nil {
		return r.HTTP
	}
	return http.DefaultClient
}

var _ core.ActorResolver = (*Resolver)(nil)
