package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

const (
	defaultSecretHeader   = "X-Trigger-Secret"
	defaultTriggerTimeout = 30 * time.Second
	maxTriggerResponse    = 1 << 20 // 1 MiB
)

// HTTPTriggerClient posts dispatch envelopes to the downstream trigger
// endpoint. A non-2xx response is reported in the result, not as an
// error; the dispatcher decides what that means.
type HTTPTriggerClient struct {
	Endpoint     string
	SharedSecret string
	SecretHeader string
	UserAgent    string
	Timeout      time.Duration
	HTTP         core.HTTPDoer
}

func NewHTTPTriggerClient(cfg core.TriggerConfig) *HTTPTriggerClient {
	return &HTTPTriggerClient{
		Endpoint:     cfg.Endpoint,
		SharedSecret: cfg.SharedSecret,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Timeout,
	}
}

func (c *HTTPTriggerClient) Trigger(ctx context.Context, envelope core.DispatchEnvelope) (core.TriggerResult, error) {
	if c == nil {
		return core.TriggerResult{}, fmt.Errorf("dispatch: trigger client is nil")
	}
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return core.TriggerResult{}, fmt.Errorf("dispatch: trigger endpoint is required")
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return core.TriggerResult{}, fmt.Errorf("dispatch: encode envelope: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.TriggerResult{}, fmt.Errorf("dispatch: build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := strings.TrimSpace(c.SharedSecret); secret != "" {
		req.Header.Set(c.secretHeader(), secret)
	}
	if agent := strings.TrimSpace(c.UserAgent); agent != "" {
		req.Header.Set("User-Agent", agent)
	}

	res, err := c.doer().Do(req)
	if err != nil {
		return core.TriggerResult{}, fmt.Errorf("dispatch: trigger call: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	payload, err := io.ReadAll(io.LimitReader(res.Body, maxTriggerResponse))
	if err != nil {
		return core.TriggerResult{}, fmt.Errorf("dispatch: read trigger response: %w", err)
	}
	return core.TriggerResult{StatusCode: res.StatusCode, Body: payload}, nil
}

func (c *HTTPTriggerClient) secretHeader() string {
	if c != nil && strings.TrimSpace(c.SecretHeader) != "" {
		return strings.TrimSpace(c.SecretHeader)
	}
	return defaultSecretHeader
}

func (c *HTTPTriggerClient) timeout() time.Duration {
	if c != nil && c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTriggerTimeout
}

func (c *HTTPTriggerClient) doer() core.HTTPDoer {
	if c != nil && c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

var _ core.TriggerClient = (*HTTPTriggerClient)(nil)
