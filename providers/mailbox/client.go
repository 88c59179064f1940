// Package mailbox implements the polled mailbox provider: an HTTP
// client for the provider's change-list, search, item-detail, and
// mark-as-read endpoints, plus the change reader the poller drives.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

const maxResponseBytes = 4 << 20 // 4 MiB

// Message is one mailbox item as returned by the detail and search
// endpoints. Token is the provider change token the item was observed
// at; Labels feed the subscription filter.
type Message struct {
	ID           string          `json:"id"`
	Token        string          `json:"token"`
	Labels       []string        `json:"labels"`
	InternalDate int64           `json:"internal_date"`
	Payload      json.RawMessage `json:"payload"`
}

type changeEntry struct {
	MessageID string `json:"message_id"`
	Token     string `json:"token"`
}

type changeList struct {
	Changes   []changeEntry `json:"changes"`
	NextToken string        `json:"next_token"`
}

type searchResult struct {
	Messages []Message `json:"messages"`
}

// Client talks to one mailbox provider API. Every call resolves a
// bearer token through the credential source and carries an independent
// timeout so a slow provider cannot hold a poller slot indefinitely.
type Client struct {
	HTTP        core.HTTPDoer
	Credentials core.CredentialSource
	UserAgent   string
	Timeout     time.Duration
}

func NewClient(doer core.HTTPDoer, credentials core.CredentialSource) *Client {
	return &Client{
		HTTP:        doer,
		Credentials: credentials,
		UserAgent:   "go-ingest/1.0",
		Timeout:     30 * time.Second,
	}
}

// ListChanges calls the incremental change-list endpoint with the
// stored change token.
func (c *Client) ListChanges(ctx context.Context, sub core.Subscription, token string, max int) (changeList, error) {
	query := url.Values{}
	query.Set("token", strings.TrimSpace(token))
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}
	var list changeList
	if err := c.get(ctx, sub, "/changes", query, &list); err != nil {
		return changeList{}, err
	}
	return list, nil
}

// SearchMessages calls the windowed query endpoint.
func (c *Client) SearchMessages(ctx context.Context, sub core.Subscription, search string, max int) ([]Message, error) {
	query := url.Values{}
	query.Set("q", strings.TrimSpace(search))
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}
	var result searchResult
	if err := c.get(ctx, sub, "/messages", query, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// GetMessage fetches one item's detail.
func (c *Client) GetMessage(ctx context.Context, sub core.Subscription, id string) (Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Message{}, fmt.Errorf("mailbox: message id is required")
	}
	var message Message
	if err := c.get(ctx, sub, "/messages/"+url.PathEscape(id), nil, &message); err != nil {
		return Message{}, err
	}
	return message, nil
}

// MarkRead flips the provider-side read flag for one item.
func (c *Client) MarkRead(ctx context.Context, sub core.Subscription, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("mailbox: message id is required")
	}
	req, cancel, err := c.newRequest(ctx, sub, http.MethodPost, "/messages/"+url.PathEscape(id)+"/read", nil)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := c.doer().Do(req)
	if err != nil {
		return fmt.Errorf("mailbox: mark read: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("mailbox: mark read returned status %d", res.StatusCode)
	}
	return nil
}

func (c *Client) get(
	ctx context.Context,
	sub core.Subscription,
	path string,
	query url.Values,
	out any,
) error {
	req, cancel, err := c.newRequest(ctx, sub, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	defer cancel()
	res, err := c.doer().Do(req)
	if err != nil {
		return fmt.Errorf("mailbox: call %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("mailbox: %s returned status %d", path, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("mailbox: read %s response: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("mailbox: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(
	ctx context.Context,
	sub core.Subscription,
	method string,
	path string,
	query url.Values,
) (*http.Request, context.CancelFunc, error) {
	if c == nil {
		return nil, nil, fmt.Errorf("mailbox: client is nil")
	}
	cfg := sub.Provider.Mailbox
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, nil, fmt.Errorf("mailbox: subscription %s has no mailbox provider config", sub.ID)
	}
	if c.Credentials == nil {
		return nil, nil, fmt.Errorf("mailbox: credential source is required")
	}
	token, err := c.Credentials.BearerToken(ctx, sub.CredentialRef)
	if err != nil {
		return nil, nil, fmt.Errorf("mailbox: resolve bearer token: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout())
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("mailbox: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(c.UserAgent) != "" {
		req.Header.Set("User-Agent", strings.TrimSpace(c.UserAgent))
	}
	return req, cancel, nil
}

func (c *Client) doer() core.HTTPDoer {
	if c != nil && c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c != nil && c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}
