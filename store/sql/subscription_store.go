// Package sqlstore persists subscriptions and idempotency records with
// bun, targeting sqlite for single-node deployments and postgres for
// shared ones.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ingest/core"
)

type SubscriptionStore struct {
	db  *bun.DB
	Now core.Clock
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SubscriptionStore{db: db}, nil
}

// Save inserts a new subscription or replaces an existing one by id.
func (s *SubscriptionStore) Save(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	sub.ID = strings.TrimSpace(sub.ID)
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if strings.TrimSpace(string(sub.Status)) == "" {
		sub.Status = core.SubscriptionStatusActive
	}
	if err := sub.Provider.Validate(sub.ProviderKind); err != nil {
		return core.Subscription{}, err
	}

	now := core.ResolveClock(s.Now)()
	record := newSubscriptionRecord(sub, now)
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("provider_kind = EXCLUDED.provider_kind").
		Set("status = EXCLUDED.status").
		Set("route = EXCLUDED.route").
		Set("filter = EXCLUDED.filter").
		Set("max_items_per_poll = EXCLUDED.max_items_per_poll").
		Set("poll_interval_seconds = EXCLUDED.poll_interval_seconds").
		Set("credential_ref = EXCLUDED.credential_ref").
		Set("actor_id = EXCLUDED.actor_id").
		Set("target = EXCLUDED.target").
		Set("provider_config = EXCLUDED.provider_config").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: save subscription %s: %w", sub.ID, err)
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) ListActive(ctx context.Context, kind core.ProviderKind) ([]core.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	var records []subscriptionRecord
	query := s.db.NewSelect().
		Model(&records).
		Where("status = ?", string(core.SubscriptionStatusActive)).
		Order("id ASC")
	if strings.TrimSpace(string(kind)) != "" {
		query = query.Where("provider_kind = ?", string(kind))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: list active subscriptions: %w", err)
	}

	subs := make([]core.Subscription, 0, len(records))
	for i := range records {
		subs = append(subs, records[i].toDomain())
	}
	return subs, nil
}

func (s *SubscriptionStore) GetByID(ctx context.Context, id string) (core.Subscription, error) {
	return s.getOne(ctx, "id = ?", strings.TrimSpace(id))
}

func (s *SubscriptionStore) GetByRoute(ctx context.Context, route string) (core.Subscription, error) {
	return s.getOne(ctx, "route = ?", strings.TrimSpace(route))
}

func (s *SubscriptionStore) getOne(ctx context.Context, clause string, value string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	if value == "" {
		return core.Subscription{}, core.ErrSubscriptionNotFound
	}
	record := new(subscriptionRecord)
	err := s.db.NewSelect().Model(record).Where(clause, value).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subscription{}, core.ErrSubscriptionNotFound
		}
		return core.Subscription{}, fmt.Errorf("sqlstore: load subscription: %w", err)
	}
	return record.toDomain(), nil
}

// AdvanceCursor merge-patches only the cursor columns. The stored
// change token never regresses, even under a stale write.
func (s *SubscriptionStore) AdvanceCursor(ctx context.Context, id string, cursor core.PollCursor) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrSubscriptionNotFound
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(subscriptionRecord)
		if err := tx.NewSelect().Model(record).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrSubscriptionNotFound
			}
			return fmt.Errorf("sqlstore: load subscription %s: %w", id, err)
		}

		token := core.MaxChangeToken(record.ChangeToken, cursor.ChangeToken)
		var lastChecked *time.Time
		if cursor.LastCheckedAt != nil {
			value := cursor.LastCheckedAt.UTC()
			lastChecked = &value
		} else {
			lastChecked = record.LastCheckedAt
		}

		_, err := tx.NewUpdate().
			Model((*subscriptionRecord)(nil)).
			Set("last_checked_at = ?", lastChecked).
			Set("change_token = ?", token).
			Set("updated_at = ?", core.ResolveClock(s.Now)()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sqlstore: advance cursor for %s: %w", id, err)
		}
		return nil
	})
}

var _ core.SubscriptionStore = (*SubscriptionStore)(nil)
