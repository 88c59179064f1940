package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrSubscriptionNotFound = errors.New("core: subscription not found")
	ErrActorNotResolved     = errors.New("core: attributed actor not resolved")
)

type ProviderKind string

const (
	ProviderKindSlack   ProviderKind = "slack"
	ProviderKindMailbox ProviderKind = "mailbox"
	ProviderKindGeneric ProviderKind = "generic"
)

func NormalizeProviderKind(kind string) ProviderKind {
	return ProviderKind(strings.TrimSpace(strings.ToLower(kind)))
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPaused   SubscriptionStatus = "paused"
	SubscriptionStatusDisabled SubscriptionStatus = "disabled"
)

// FilterConfig keeps or drops discovered items by tag membership.
// An empty include list keeps everything.
type FilterConfig struct {
	IncludeTags []string
	ExcludeTags []string
}

func (f FilterConfig) Match(tags []string) bool {
	if len(f.IncludeTags) > 0 {
		included := false
		for _, want := range f.IncludeTags {
			if containsFold(tags, want) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, drop := range f.ExcludeTags {
		if containsFold(tags, drop) {
			return false
		}
	}
	return true
}

func containsFold(values []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), want) {
			return true
		}
	}
	return false
}

// PollCursor is the per-subscription progress marker. ChangeToken is the
// provider-issued incremental marker; LastCheckedAt backs the windowed
// query fallback when no token exists.
type PollCursor struct {
	LastCheckedAt *time.Time
	ChangeToken   string
}

func (c PollCursor) IsZero() bool {
	return c.LastCheckedAt == nil && strings.TrimSpace(c.ChangeToken) == ""
}

// MaxChangeToken returns the larger of two provider change tokens.
// Numeric tokens compare as integers, everything else lexicographically,
// so a cursor never regresses regardless of token shape.
func MaxChangeToken(current string, candidate string) string {
	current = strings.TrimSpace(current)
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}
	currentN, currentErr := strconv.ParseUint(current, 10, 64)
	candidateN, candidateErr := strconv.ParseUint(candidate, 10, 64)
	if currentErr == nil && candidateErr == nil {
		if candidateN > currentN {
			return candidate
		}
		return current
	}
	if candidate > current {
		return candidate
	}
	return current
}

type TargetMode string

const (
	TargetModeDraft     TargetMode = "draft"
	TargetModePublished TargetMode = "published"
)

// DispatchTarget is where dispatched events are delivered downstream.
type DispatchTarget struct {
	WorkflowID string
	Mode       TargetMode
	URL        string
}

// SlackProviderConfig carries the signing material for Slack-style push
// subscriptions.
type SlackProviderConfig struct {
	SigningSecret string
	ReplayWindow  time.Duration
}

// MailboxProviderConfig carries the provider API surface for polled
// mailbox subscriptions.
type MailboxProviderConfig struct {
	BaseURL            string
	SharedSecretHeader string
	SharedSecret       string
}

// GenericProviderConfig covers webhook sources authenticated by HMAC
// signature, a shared-secret header, or a bearer token. Unset checks are
// no-op passes.
type GenericProviderConfig struct {
	SigningSecret     string
	SignatureHeader   string
	SignatureEncoding string // hex | base64
	SignaturePrefix   string
	SecretHeader      string
	SecretValue       string
	BearerToken       string
}

// ProviderConfig is a tagged union: exactly one branch should be set,
// matching the subscription's provider kind. Validated at the
// configuration boundary, not at use sites.
type ProviderConfig struct {
	Slack   *SlackProviderConfig
	Mailbox *MailboxProviderConfig
	Generic *GenericProviderConfig
}

func (c ProviderConfig) Validate(kind ProviderKind) error {
	switch kind {
	case ProviderKindSlack:
		if c.Slack == nil {
			return errors.New("core: slack subscription requires slack provider config")
		}
	case ProviderKindMailbox:
		if c.Mailbox == nil {
			return errors.New("core: mailbox subscription requires mailbox provider config")
		}
		if strings.TrimSpace(c.Mailbox.BaseURL) == "" {
			return errors.New("core: mailbox provider config requires base url")
		}
	case ProviderKindGeneric:
		// all generic checks are optional; unset means no-op pass
	default:
		return errors.New("core: unknown provider kind " + strconv.Quote(string(kind)))
	}
	return nil
}

// Subscription is one configured inbound connection, created and updated
// by the configuration collaborator. The poller mutates only the cursor
// after each cycle; the inbound pipeline mutates only the cursor after a
// push delivery with an embedded change token.
type Subscription struct {
	ID              string
	ProviderKind    ProviderKind
	Status          SubscriptionStatus
	Route           string
	Filter          FilterConfig
	MaxItemsPerPoll int
	PollInterval    time.Duration
	CredentialRef   string
	ActorID         string
	Cursor          PollCursor
	Target          DispatchTarget
	Provider        ProviderConfig
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// PollIntervalMinutes reports the configured interval in whole minutes,
// never below one. The windowed query math works in minutes.
func (s Subscription) PollIntervalMinutes() int {
	minutes := int(s.PollInterval / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}

// InboundEvent is one discovered or delivered unit of work. It lives
// only for the duration of a poll iteration or HTTP call.
type InboundEvent struct {
	SubscriptionID  string
	ProviderEventID string
	Payload         []byte
	Tags            []string
	ChangeToken     string
	DiscoveredAt    time.Time
}

// EventFingerprint derives the deduplication key for one logical event.
// Identical (subscription, provider event id) pairs always produce the
// same fingerprint.
func EventFingerprint(kind ProviderKind, subscriptionID string, providerEventID string) string {
	sum := sha256.Sum256([]byte(
		string(kind) + "|" + strings.TrimSpace(subscriptionID) + "|" + strings.TrimSpace(providerEventID),
	))
	return hex.EncodeToString(sum[:])
}

// DispatchEnvelope is the normalized unit handed from ingestion to
// execution. Consumed exactly once by the queue or inline path.
type DispatchEnvelope struct {
	SubscriptionID  string         `json:"subscription_id"`
	ActorID         string         `json:"actor_id"`
	ProviderKind    ProviderKind   `json:"provider_kind"`
	ProviderEventID string         `json:"provider_event_id"`
	Payload         []byte         `json:"payload"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	TargetMode      TargetMode     `json:"target_mode"`
	Target          DispatchTarget `json:"target"`
	DiscoveredAt    time.Time      `json:"discovered_at"`
}

func (e DispatchEnvelope) Fingerprint() string {
	return EventFingerprint(e.ProviderKind, e.SubscriptionID, e.ProviderEventID)
}

type DispatchStatus string

const (
	DispatchStatusQueued    DispatchStatus = "queued"
	DispatchStatusExecuted  DispatchStatus = "executed"
	DispatchStatusFailed    DispatchStatus = "failed"
	DispatchStatusDuplicate DispatchStatus = "duplicate"
)

// DispatchOutcome is the definitive result of one Dispatch call. Err is
// informational; dispatch failures are swallowed at the dispatcher
// boundary and recorded here instead of propagating.
type DispatchOutcome struct {
	Status      DispatchStatus
	Fingerprint string
	TaskID      string
	Err         string
	Metadata    map[string]any
}

// RateDecision is a transient per-attempt verdict from the rate limiter.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// UsageDecision is a transient per-attempt verdict from the usage meter.
type UsageDecision struct {
	Allowed bool
	Current int64
	Limit   int64
}

// ChangeBatch is the result of one FetchChanges invocation.
type ChangeBatch struct {
	Items      []InboundEvent
	NextCursor PollCursor
}

type PollStatus string

const (
	PollStatusOK     PollStatus = "ok"
	PollStatusFailed PollStatus = "failed"
)

type SubscriptionPollResult struct {
	SubscriptionID string
	Status         PollStatus
	Discovered     int
	Dispatched     int
	Cursor         PollCursor
	Error          string
}

// PollSummary aggregates one PollAll run.
type PollSummary struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Results    []SubscriptionPollResult
}

// InboundRequest is one raw provider HTTP call as seen by the pipeline.
type InboundRequest struct {
	SubscriptionID string
	Route          string
	ProviderKind   ProviderKind
	Method         string
	Headers        map[string]string
	Query          map[string]string
	Body           []byte
}

func (r InboundRequest) Header(key string) string {
	return HeaderValue(r.Headers, key)
}

// InboundResult is the terminal response for one inbound call.
type InboundResult struct {
	Accepted    bool
	StatusCode  int
	ContentType string
	Body        []byte
	Metadata    map[string]any
}

func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
