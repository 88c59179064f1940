// Package slack implements the Slack-style provider capability:
// url_verification handshake echo and v0 signing-secret verification.
package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/providers"
)

const (
	headerSignature = "X-Slack-Signature"
	headerTimestamp = "X-Slack-Request-Timestamp"

	signatureVersion = "v0"

	defaultReplayWindow = 5 * time.Minute
)

type Provider struct {
	ReplayWindow time.Duration
	Now          core.Clock
}

func New() *Provider {
	return &Provider{ReplayWindow: defaultReplayWindow}
}

func (*Provider) Kind() core.ProviderKind {
	return core.ProviderKindSlack
}

func (p *Provider) Authenticate(_ context.Context, sub core.Subscription, req core.InboundRequest) error {
	cfg := sub.Provider.Slack
	if cfg == nil || strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil
	}

	rawTimestamp := strings.TrimSpace(req.Header(headerTimestamp))
	if rawTimestamp == "" {
		return fmt.Errorf("slack: %s header is required", headerTimestamp)
	}
	issuedAt, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("slack: parse request timestamp: %w", err)
	}
	now := p.now()
	window := cfg.ReplayWindow
	if window <= 0 {
		window = p.replayWindow()
	}
	age := now.Sub(time.Unix(issuedAt, 0).UTC())
	if age > window || age < -window {
		return fmt.Errorf("slack: request timestamp outside replay window")
	}

	header := strings.TrimSpace(req.Header(headerSignature))
	if header == "" {
		return fmt.Errorf("slack: %s header is required", headerSignature)
	}
	signature := strings.TrimPrefix(header, signatureVersion+"=")

	base := signatureVersion + ":" + rawTimestamp + ":" + string(req.Body)
	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(cfg.SigningSecret)))
	_, _ = mac.Write([]byte(base))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return fmt.Errorf("slack: signature verification failed")
	}
	return nil
}

type challengeEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// FormatChallenge answers url_verification handshakes by echoing the
// challenge token, without touching application state.
func (*Provider) FormatChallenge(req core.InboundRequest) (core.InboundResult, bool) {
	var envelope challengeEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return core.InboundResult{}, false
	}
	if !strings.EqualFold(strings.TrimSpace(envelope.Type), "url_verification") {
		return core.InboundResult{}, false
	}
	if strings.TrimSpace(envelope.Challenge) == "" {
		return core.InboundResult{}, false
	}
	body, _ := json.Marshal(map[string]string{"challenge": envelope.Challenge})
	return core.InboundResult{
		Accepted:    true,
		StatusCode:  200,
		ContentType: "application/json",
		Body:        body,
		Metadata:    map[string]any{"challenge": true},
	}, true
}

func (p *Provider) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Provider) replayWindow() time.Duration {
	if p != nil && p.ReplayWindow > 0 {
		return p.ReplayWindow
	}
	return defaultReplayWindow
}

var _ providers.Capability = (*Provider)(nil)
