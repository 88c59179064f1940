package idempotency

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingest/core"
)

type memoryEntry struct {
	record Record
	done   chan struct{}
}

// InMemoryStore is the default record store for single-process
// deployments and tests. Reserve is atomic under the store mutex, which
// is what guarantees the at-most-one-in-progress invariant.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	Now     core.Clock
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: map[string]*memoryEntry{},
	}
}

func (s *InMemoryStore) Reserve(
	_ context.Context,
	namespace string,
	key string,
	ttl time.Duration,
) (Record, bool, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.now()
	id := recordID(namespace, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)

	entry, exists := s.entries[id]
	if exists && now.Before(entry.record.ExpiresAt) {
		return cloneRecord(entry.record), false, nil
	}

	attempts := 1
	if exists {
		// expired record, reclaim for a fresh execution
		attempts = entry.record.Attempts + 1
		if entry.record.State == StateInProgress {
			close(entry.done)
		}
	}
	fresh := &memoryEntry{
		record: Record{
			Namespace: strings.TrimSpace(namespace),
			Key:       strings.TrimSpace(key),
			State:     StateInProgress,
			Attempts:  attempts,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		},
		done: make(chan struct{}),
	}
	s.entries[id] = fresh
	return cloneRecord(fresh.record), true, nil
}

func (s *InMemoryStore) Complete(
	_ context.Context,
	namespace string,
	key string,
	result map[string]any,
) error {
	return s.finish(namespace, key, StateCompleted, result, "")
}

func (s *InMemoryStore) Fail(_ context.Context, namespace string, key string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return s.finish(namespace, key, StateFailed, nil, message)
}

func (s *InMemoryStore) Get(_ context.Context, namespace string, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.entries[recordID(namespace, key)]
	if !exists {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(entry.record), nil
}

// Await blocks until the in-progress record turns terminal. Duplicate
// callers adopt the owner's outcome without polling.
func (s *InMemoryStore) Await(ctx context.Context, namespace string, key string) (Record, error) {
	for {
		s.mu.Lock()
		entry, exists := s.entries[recordID(namespace, key)]
		if !exists {
			s.mu.Unlock()
			return Record{}, ErrRecordNotFound
		}
		if entry.record.Terminal() {
			record := cloneRecord(entry.record)
			s.mu.Unlock()
			return record, nil
		}
		done := entry.done
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-done:
		}
	}
}

func (s *InMemoryStore) finish(
	namespace string,
	key string,
	state State,
	result map[string]any,
	message string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.entries[recordID(namespace, key)]
	if !exists || entry.record.State != StateInProgress {
		return nil
	}
	entry.record.State = state
	entry.record.Result = cloneResult(result)
	entry.record.Err = message
	close(entry.done)
	return nil
}

func (s *InMemoryStore) evictExpiredLocked(now time.Time) {
	for id, entry := range s.entries {
		if entry.record.Terminal() && !now.Before(entry.record.ExpiresAt) {
			delete(s.entries, id)
		}
	}
}

func (s *InMemoryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func recordID(namespace string, key string) string {
	return strings.TrimSpace(namespace) + "|" + strings.TrimSpace(key)
}

func cloneRecord(record Record) Record {
	record.Result = cloneResult(record.Result)
	return record
}

func cloneResult(result map[string]any) map[string]any {
	if len(result) == 0 {
		return nil
	}
	copied := make(map[string]any, len(result))
	for key, value := range result {
		copied[key] = value
	}
	return copied
}

var _ Store = (*InMemoryStore)(nil)
var _ Waiter = (*InMemoryStore)(nil)
