package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryStore_ReserveIsCreateIfAbsent(t *testing.T) {
	store := NewInMemoryStore()

	first, owned, err := store.Reserve(context.Background(), "ns", "key", time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !owned {
		t.Fatalf("expected first reserve to own execution")
	}
	if first.State != StateInProgress {
		t.Fatalf("expected in-progress record, got %s", first.State)
	}

	second, owned, err := store.Reserve(context.Background(), "ns", "key", time.Minute)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if owned {
		t.Fatalf("expected second reserve to observe existing claim")
	}
	if second.State != StateInProgress {
		t.Fatalf("expected pending record, got %s", second.State)
	}
}

func TestInMemoryStore_CompleteOnlyAffectsInProgress(t *testing.T) {
	store := NewInMemoryStore()
	if _, _, err := store.Reserve(context.Background(), "ns", "key", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Complete(context.Background(), "ns", "key", map[string]any{"ok": true}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// completing again is a no-op, not an error
	if err := store.Complete(context.Background(), "ns", "key", map[string]any{"ok": false}); err != nil {
		t.Fatalf("idempotent complete: %v", err)
	}
	record, err := store.Get(context.Background(), "ns", "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != StateCompleted || record.Result["ok"] != true {
		t.Fatalf("expected first completion to win, got %+v", record)
	}
}

func TestInMemoryStore_FailRecordsCause(t *testing.T) {
	store := NewInMemoryStore()
	if _, _, err := store.Reserve(context.Background(), "ns", "key", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Fail(context.Background(), "ns", "key", errors.New("trigger failed")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	record, err := store.Get(context.Background(), "ns", "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.State != StateFailed || record.Err != "trigger failed" {
		t.Fatalf("expected failure cause recorded, got %+v", record)
	}
}

func TestInMemoryStore_ExpiredTerminalRecordsAreEvicted(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	if _, _, err := store.Reserve(context.Background(), "ns", "key", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Complete(context.Background(), "ns", "key", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	now = now.Add(2 * time.Minute)
	// reserving an unrelated key runs eviction
	if _, _, err := store.Reserve(context.Background(), "ns", "other", time.Minute); err != nil {
		t.Fatalf("reserve other: %v", err)
	}
	if _, err := store.Get(context.Background(), "ns", "key"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected expired record to be evicted, got %v", err)
	}
}

func TestInMemoryStore_AwaitAdoptsOutcome(t *testing.T) {
	store := NewInMemoryStore()
	if _, _, err := store.Reserve(context.Background(), "ns", "key", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	done := make(chan Record, 1)
	go func() {
		record, err := store.Await(context.Background(), "ns", "key")
		if err != nil {
			t.Errorf("await: %v", err)
		}
		done <- record
	}()

	time.Sleep(10 * time.Millisecond)
	if err := store.Complete(context.Background(), "ns", "key", map[string]any{"ok": true}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	select {
	case record := <-done:
		if record.State != StateCompleted {
			t.Fatalf("expected completed record, got %+v", record)
		}
	case <-time.After(time.Second):
		t.Fatalf("await did not observe completion")
	}
}

func TestInMemoryStore_AwaitHonorsContext(t *testing.T) {
	store := NewInMemoryStore()
	if _, _, err := store.Reserve(context.Background(), "ns", "key", time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := store.Await(ctx, "ns", "key"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
