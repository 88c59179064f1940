// Package credentials resolves bearer tokens for provider API calls,
// caching them per credential reference and transparently refreshing
// before expiry, and issues the signed verification tokens used by the
// diagnostic path.
package credentials

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

	"github.com/goliatone/go-ingest/core"
)

const (
	defaultTokenTTL    = time.Hour
	defaultRenewBefore = 2 * time.Minute
)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenSource exchanges client credentials at an OAuth token endpoint
// and caches the issued bearer token until shortly before expiry.
// Failure to produce a token is terminal for the requesting
// subscription or call only.
type TokenSource struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	RenewBefore  time.Duration
	HTTP         core.HTTPDoer
	Now          core.Clock

	mu    sync.Mutex
	cache map[string]cachedToken
}

func NewTokenSource(tokenURL string, clientID string, clientSecret string) *TokenSource {
	return &TokenSource{
		TokenURL:     strings.TrimSpace(tokenURL),
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: strings.TrimSpace(clientSecret),
		RenewBefore:  defaultRenewBefore,
		cache:        map[string]cachedToken{},
	}
}

// BearerToken returns a valid token for the credential reference,
// refreshing an expired or near-expiry one first.
func (s *TokenSource) BearerToken(ctx context.Context, credentialRef string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("credentials: token source is nil")
	}
	credentialRef = strings.TrimSpace(credentialRef)
	if credentialRef == "" {
		return "", fmt.Errorf("credentials: credential ref is required")
	}

	if token, ok := s.lookup(credentialRef); ok {
		return token, nil
	}

	issued, expiresAt, err := s.exchange(ctx, credentialRef)
	if err != nil {
		return "", err
	}
	s.store(credentialRef, issued, expiresAt)
	return issued, nil
}

func (s *TokenSource) lookup(credentialRef string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		return "", false
	}
	cached, ok := s.cache[credentialRef]
	if !ok {
		return "", false
	}
	now := core.ResolveClock(s.Now)()
	if !cached.expiresAt.After(now.Add(s.renewBefore())) {
		delete(s.cache, credentialRef)
		return "", false
	}
	return cached.token, true
}

func (s *TokenSource) store(credentialRef string, token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = map[string]cachedToken{}
	}
	s.cache[credentialRef] = cachedToken{token: token, expiresAt: expiresAt}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *TokenSource) exchange(ctx context.Context, credentialRef string) (string, time.Time, error) {
	endpoint := strings.TrimSpace(s.TokenURL)
	if endpoint == "" {
		return "", time.Time{}, fmt.Errorf("credentials: token url is required")
	}
	if s.ClientID == "" || s.ClientSecret == "" {
		return "", time.Time{}, fmt.Errorf("credentials: client credentials are required")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.ClientID)
	form.Set("client_secret", s.ClientSecret)
	form.Set("audience", credentialRef)
	if len(s.Scopes) > 0 {
		form.Set("scope", strings.Join(s.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("credentials: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.doer().Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("credentials: token endpoint call: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("credentials: read token response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("credentials: token endpoint returned status %d", res.StatusCode)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("credentials: decode token response: %w", err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", time.Time{}, fmt.Errorf("credentials: token response has no access token")
	}

	ttl := defaultTokenTTL
	if parsed.ExpiresIn > 0 {
		ttl = time.Duration(parsed.ExpiresIn) * time.Second
	}
	expiresAt := core.ResolveClock(s.Now)().Add(ttl)
	return strings.TrimSpace(parsed.AccessToken), expiresAt, nil
}

func (s *TokenSource) renewBefore() time.Duration {
	if s != nil && s.RenewBefore > 0 {
		return s.RenewBefore
	}
	return defaultRenewBefore
}

func (s *TokenSource) doer() core.HTTPDoer {
	if s != nil && s.HTTP != nil {
		return s.HTTP
	}
	return http.DefaultClient
}

// StaticSource returns fixed tokens keyed by credential reference.
// Useful for tests and for providers wired with long-lived tokens.
type StaticSource map[string]string

func (s StaticSource) BearerToken(_ context.Context, credentialRef string) (string, error) {
	token, ok := s[strings.TrimSpace(credentialRef)]
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("credentials: no token for credential ref %q", credentialRef)
	}
	return token, nil
}

var (
	_ core.CredentialSource = (*TokenSource)(nil)
	_ core.CredentialSource = StaticSource(nil)
)
