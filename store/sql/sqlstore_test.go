package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/idempotency"
	"github.com/uptrace/bun"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := Open("sqlite3", "file::memory:?cache=shared&_fk=1")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := CreateTables(context.Background(), db); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return db
}

func storedSubscription(id string, route string) core.Subscription {
	return core.Subscription{
		ID:            id,
		ProviderKind:  core.ProviderKindMailbox,
		Status:        core.SubscriptionStatusActive,
		Route:         route,
		Filter:        core.FilterConfig{IncludeTags: []string{"INBOX"}},
		PollInterval:  5 * time.Minute,
		CredentialRef: "cred-1",
		ActorID:       "actor-1",
		Provider: core.ProviderConfig{
			Mailbox: &core.MailboxProviderConfig{BaseURL: "https://mail.example.com"},
		},
	}
}

func TestSubscriptionStore_SaveAndLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSubscriptionStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	saved, err := store.Save(context.Background(), storedSubscription("sub-1", "hooks/mail"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.GetByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if loaded.Route != saved.Route || loaded.ProviderKind != core.ProviderKindMailbox {
		t.Fatalf("unexpected subscription: %+v", loaded)
	}
	if loaded.Provider.Mailbox == nil || loaded.Provider.Mailbox.BaseURL != "https://mail.example.com" {
		t.Fatalf("provider config lost: %+v", loaded.Provider)
	}
	if len(loaded.Filter.IncludeTags) != 1 || loaded.Filter.IncludeTags[0] != "INBOX" {
		t.Fatalf("filter lost: %+v", loaded.Filter)
	}
	if loaded.PollInterval != 5*time.Minute {
		t.Fatalf("poll interval lost: %v", loaded.PollInterval)
	}

	byRoute, err := store.GetByRoute(context.Background(), "hooks/mail")
	if err != nil {
		t.Fatalf("get by route: %v", err)
	}
	if byRoute.ID != "sub-1" {
		t.Fatalf("unexpected route lookup: %+v", byRoute)
	}
}

func TestSubscriptionStore_GetMissing(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSubscriptionStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.GetByID(context.Background(), "nope"); !errors.Is(err, core.ErrSubscriptionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := store.GetByRoute(context.Background(), "nope"); !errors.Is(err, core.ErrSubscriptionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSubscriptionStore_ListActiveFiltersKindAndStatus(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSubscriptionStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := store.Save(context.Background(), storedSubscription("sub-1", "hooks/a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	paused := storedSubscription("sub-2", "hooks/b")
	paused.Status = core.SubscriptionStatusPaused
	if _, err := store.Save(context.Background(), paused); err != nil {
		t.Fatalf("save: %v", err)
	}
	slack := core.Subscription{
		ID:           "sub-3",
		ProviderKind: core.ProviderKindSlack,
		Status:       core.SubscriptionStatusActive,
		Provider:     core.ProviderConfig{Slack: &core.SlackProviderConfig{SigningSecret: "s"}},
	}
	if _, err := store.Save(context.Background(), slack); err != nil {
		t.Fatalf("save: %v", err)
	}

	subs, err := store.ListActive(context.Background(), core.ProviderKindMailbox)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-1" {
		t.Fatalf("unexpected active set: %+v", subs)
	}
}

func TestSubscriptionStore_AdvanceCursorMergePatch(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSubscriptionStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(context.Background(), storedSubscription("sub-1", "hooks/a")); err != nil {
		t.Fatalf("save: %v", err)
	}

	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cursor := core.PollCursor{LastCheckedAt: &checked, ChangeToken: "100"}
	if err := store.AdvanceCursor(context.Background(), "sub-1", cursor); err != nil {
		t.Fatalf("advance: %v", err)
	}

	loaded, err := store.GetByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Cursor.ChangeToken != "100" {
		t.Fatalf("unexpected token %q", loaded.Cursor.ChangeToken)
	}
	if loaded.Cursor.LastCheckedAt == nil || !loaded.Cursor.LastCheckedAt.Equal(checked) {
		t.Fatalf("unexpected last-checked %v", loaded.Cursor.LastCheckedAt)
	}
	// non-cursor fields are untouched
	if loaded.Route != "hooks/a" || loaded.CredentialRef != "cred-1" {
		t.Fatalf("merge-patch touched other fields: %+v", loaded)
	}

	// a stale token never regresses the stored one
	stale := core.PollCursor{LastCheckedAt: &checked, ChangeToken: "50"}
	if err := store.AdvanceCursor(context.Background(), "sub-1", stale); err != nil {
		t.Fatalf("advance: %v", err)
	}
	loaded, err = store.GetByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Cursor.ChangeToken != "100" {
		t.Fatalf("cursor regressed to %q", loaded.Cursor.ChangeToken)
	}
}

func TestSubscriptionStore_AdvanceCursorMissingSubscription(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSubscriptionStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	err = store.AdvanceCursor(context.Background(), "nope", core.PollCursor{ChangeToken: "1"})
	if !errors.Is(err, core.ErrSubscriptionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestIdempotencyStore_ReserveCreateIfAbsent(t *testing.T) {
	db := openTestDB(t)
	store, err := NewIdempotencyStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record, owned, err := store.Reserve(context.Background(), "dispatch", "fp-1", time.Hour)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !owned || record.State != idempotency.StateInProgress {
		t.Fatalf("expected fresh ownership, got owned=%v record=%+v", owned, record)
	}

	_, owned, err = store.Reserve(context.Background(), "dispatch", "fp-1", time.Hour)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if owned {
		t.Fatal("expected second caller to lose the reservation")
	}

	// a different key is independent
	_, owned, err = store.Reserve(context.Background(), "dispatch", "fp-2", time.Hour)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !owned {
		t.Fatal("expected independent key to be owned")
	}
}

func TestIdempotencyStore_CompleteAndReplay(t *testing.T) {
	db := openTestDB(t)
	store, err := NewIdempotencyStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, _, err := store.Reserve(context.Background(), "dispatch", "fp-1", time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Complete(context.Background(), "dispatch", "fp-1", map[string]any{"path": "inline"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	record, owned, err := store.Reserve(context.Background(), "dispatch", "fp-1", time.Hour)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if owned {
		t.Fatal("expected completed record, not a fresh reservation")
	}
	if record.State != idempotency.StateCompleted || record.Result["path"] != "inline" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestIdempotencyStore_ExpiredRecordReclaimed(t *testing.T) {
	db := openTestDB(t)
	store, err := NewIdempotencyStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return current }

	if _, _, err := store.Reserve(context.Background(), "dispatch", "fp-1", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Fail(context.Background(), "dispatch", "fp-1", errors.New("downstream offline")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	current = current.Add(2 * time.Minute)
	record, owned, err := store.Reserve(context.Background(), "dispatch", "fp-1", time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !owned {
		t.Fatal("expected expired record to be reclaimed")
	}
	if record.State != idempotency.StateInProgress || record.Attempts != 2 {
		t.Fatalf("unexpected reclaimed record: %+v", record)
	}
	if record.Err != "" {
		t.Fatalf("expected cleared error, got %q", record.Err)
	}
}

func TestIdempotencyStore_FinishWithoutReservation(t *testing.T) {
	db := openTestDB(t)
	store, err := NewIdempotencyStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	err = store.Complete(context.Background(), "dispatch", "nope", nil)
	if !errors.Is(err, idempotency.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found, got %v", err)
	}
}

func TestIdempotencyStore_BacksTheGuard(t *testing.T) {
	db := openTestDB(t)
	store, err := NewIdempotencyStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	guard := idempotency.NewGuard(store)

	calls := 0
	fn := func(context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"run": "once"}, nil
	}

	first, err := guard.ExecuteOnce(context.Background(), "dispatch", "fp-1", fn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	second, err := guard.ExecuteOnce(context.Background(), "dispatch", "fp-1", fn)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one invocation, got %d", calls)
	}
	if !second.Replayed || second.Result["run"] != first.Result["run"] {
		t.Fatalf("expected replayed outcome, got %+v", second)
	}
}
