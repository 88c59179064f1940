package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/idempotency"
)

// IdempotencyStore backs the guard with a SQL table carrying a unique
// (namespace, key) constraint. Reserve relies on insert-or-conflict so
// concurrent callers across processes still see exactly one owner.
type IdempotencyStore struct {
	db  *bun.DB
	Now core.Clock
}

func NewIdempotencyStore(db *bun.DB) (*IdempotencyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &IdempotencyStore{db: db}, nil
}

func (s *IdempotencyStore) Reserve(
	ctx context.Context,
	namespace string,
	key string,
	ttl time.Duration,
) (idempotency.Record, bool, error) {
	if s == nil || s.db == nil {
		return idempotency.Record{}, false, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return idempotency.Record{}, false, fmt.Errorf("sqlstore: namespace and key are required")
	}
	now := core.ResolveClock(s.Now)()

	fresh := &idempotencyRecord{
		ID:        uuid.NewString(),
		Namespace: namespace,
		Key:       key,
		State:     string(idempotency.StateInProgress),
		Attempts:  1,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	inserted, err := s.db.NewInsert().
		Model(fresh).
		On("CONFLICT (namespace, key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("sqlstore: reserve idempotency record: %w", err)
	}
	if rows, _ := inserted.RowsAffected(); rows == 1 {
		return toIdempotencyDomain(fresh), true, nil
	}

	// a record exists; reclaim it when expired
	reclaimed, err := s.db.NewUpdate().
		Model((*idempotencyRecord)(nil)).
		Set("state = ?", string(idempotency.StateInProgress)).
		Set("result = NULL").
		Set("error = ''").
		Set("attempts = attempts + 1").
		Set("created_at = ?", now).
		Set("expires_at = ?", now.Add(ttl)).
		Where("namespace = ? AND key = ? AND expires_at <= ?", namespace, key, now).
		Exec(ctx)
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("sqlstore: reclaim idempotency record: %w", err)
	}
	if rows, _ := reclaimed.RowsAffected(); rows == 1 {
		record, err := s.Get(ctx, namespace, key)
		return record, true, err
	}

	record, err := s.Get(ctx, namespace, key)
	return record, false, err
}

func (s *IdempotencyStore) Complete(ctx context.Context, namespace string, key string, result map[string]any) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlstore: encode idempotency result: %w", err)
	}
	return s.finish(ctx, namespace, key, idempotency.StateCompleted, encoded, "")
}

func (s *IdempotencyStore) Fail(ctx context.Context, namespace string, key string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.finish(ctx, namespace, key, idempotency.StateFailed, nil, message)
}

func (s *IdempotencyStore) finish(
	ctx context.Context,
	namespace string,
	key string,
	state idempotency.State,
	result []byte,
	message string,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	updated, err := s.db.NewUpdate().
		Model((*idempotencyRecord)(nil)).
		Set("state = ?", string(state)).
		Set("result = ?", result).
		Set("error = ?", message).
		Where("namespace = ? AND key = ?", strings.TrimSpace(namespace), strings.TrimSpace(key)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: finish idempotency record: %w", err)
	}
	if rows, _ := updated.RowsAffected(); rows == 0 {
		return idempotency.ErrRecordNotFound
	}
	return nil
}

func (s *IdempotencyStore) Get(ctx context.Context, namespace string, key string) (idempotency.Record, error) {
	if s == nil || s.db == nil {
		return idempotency.Record{}, fmt.Errorf("sqlstore: idempotency store is not configured")
	}
	record := new(idempotencyRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("namespace = ? AND key = ?", strings.TrimSpace(namespace), strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.Record{}, idempotency.ErrRecordNotFound
		}
		return idempotency.Record{}, fmt.Errorf("sqlstore: load idempotency record: %w", err)
	}
	return toIdempotencyDomain(record), nil
}

func toIdempotencyDomain(record *idempotencyRecord) idempotency.Record {
	out := idempotency.Record{
		Namespace: record.Namespace,
		Key:       record.Key,
		State:     idempotency.State(record.State),
		Err:       record.Err,
		Attempts:  record.Attempts,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}
	if len(record.Result) > 0 {
		_ = json.Unmarshal(record.Result, &out.Result)
	}
	return out
}

var _ idempotency.Store = (*IdempotencyStore)(nil)
