package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-ingest/core"
)

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:ingest_subscriptions,alias:isub"`

	ID              string              `bun:"id,pk"`
	ProviderKind    string              `bun:"provider_kind,notnull"`
	Status          string              `bun:"status,notnull"`
	Route           string              `bun:"route"`
	Filter          core.FilterConfig   `bun:"filter,type:jsonb"`
	MaxItemsPerPoll int                 `bun:"max_items_per_poll"`
	PollIntervalSec int64               `bun:"poll_interval_seconds"`
	CredentialRef   string              `bun:"credential_ref"`
	ActorID         string              `bun:"actor_id"`
	LastCheckedAt   *time.Time          `bun:"last_checked_at,nullzero"`
	ChangeToken     string              `bun:"change_token"`
	Target          core.DispatchTarget `bun:"target,type:jsonb"`
	Provider        core.ProviderConfig `bun:"provider_config,type:jsonb"`
	Metadata        map[string]any      `bun:"metadata,type:jsonb"`
	CreatedAt       time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type idempotencyRecord struct {
	bun.BaseModel `bun:"table:ingest_idempotency_records,alias:iid"`

	ID        string    `bun:"id,pk"`
	Namespace string    `bun:"namespace,notnull"`
	Key       string    `bun:"key,notnull"`
	State     string    `bun:"state,notnull"`
	Result    []byte    `bun:"result,type:jsonb"`
	Err       string    `bun:"error"`
	Attempts  int       `bun:"attempts,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

func newSubscriptionRecord(sub core.Subscription, now time.Time) *subscriptionRecord {
	var lastChecked *time.Time
	if sub.Cursor.LastCheckedAt != nil {
		value := sub.Cursor.LastCheckedAt.UTC()
		lastChecked = &value
	}
	return &subscriptionRecord{
		ID:              sub.ID,
		ProviderKind:    string(sub.ProviderKind),
		Status:          string(sub.Status),
		Route:           sub.Route,
		Filter:          sub.Filter,
		MaxItemsPerPoll: sub.MaxItemsPerPoll,
		PollIntervalSec: int64(sub.PollInterval / time.Second),
		CredentialRef:   sub.CredentialRef,
		ActorID:         sub.ActorID,
		LastCheckedAt:   lastChecked,
		ChangeToken:     sub.Cursor.ChangeToken,
		Target:          sub.Target,
		Provider:        sub.Provider,
		Metadata:        sub.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	return core.Subscription{
		ID:              r.ID,
		ProviderKind:    core.ProviderKind(r.ProviderKind),
		Status:          core.SubscriptionStatus(r.Status),
		Route:           r.Route,
		Filter:          r.Filter,
		MaxItemsPerPoll: r.MaxItemsPerPoll,
		PollInterval:    time.Duration(r.PollIntervalSec) * time.Second,
		CredentialRef:   r.CredentialRef,
		ActorID:         r.ActorID,
		Cursor: core.PollCursor{
			LastCheckedAt: r.LastCheckedAt,
			ChangeToken:   r.ChangeToken,
		},
		Target:   r.Target,
		Provider: r.Provider,
		Metadata: r.Metadata,
	}
}
