// Package idempotency provides at-most-once execution per
// (namespace, key) pair. A first caller creates an in-progress record,
// runs the function, and stores the terminal outcome; any concurrent or
// subsequent caller with the same key before expiry receives the cached
// or pending outcome without re-invoking the function.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

var ErrRecordNotFound = errors.New("idempotency: record not found")

type State string

const (
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Record maps a fingerprint to one in-flight-or-completed execution.
// At most one record may be in progress for a given key at a time.
type Record struct {
	Namespace string
	Key       string
	State     State
	Result    map[string]any
	Err       string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r Record) Terminal() bool {
	return r.State == StateCompleted || r.State == StateFailed
}

// Store is the only state mutated concurrently by multiple tasks; its
// Reserve must provide atomic create-if-absent semantics.
type Store interface {
	// Reserve atomically claims execution for the key. The boolean is
	// true when the caller owns the execution; false returns the
	// existing record (pending or terminal).
	Reserve(ctx context.Context, namespace string, key string, ttl time.Duration) (Record, bool, error)
	Complete(ctx context.Context, namespace string, key string, result map[string]any) error
	Fail(ctx context.Context, namespace string, key string, cause error) error
	Get(ctx context.Context, namespace string, key string) (Record, error)
}

// Waiter is an optional store capability: block until the record for the
// key reaches a terminal state. Stores without it are polled instead.
type Waiter interface {
	Await(ctx context.Context, namespace string, key string) (Record, error)
}

type Fn func(ctx context.Context) (map[string]any, error)

// Outcome is the definitive result both the executing caller and any
// duplicate caller observe. Execution failures land in Err rather than
// in the error return, which is reserved for store failures.
type Outcome struct {
	State    State
	Result   map[string]any
	Err      string
	Replayed bool
}

type Guard struct {
	Store        Store
	TTL          time.Duration
	WaitInterval time.Duration
	Logger       core.Logger
	Now          core.Clock
}

func NewGuard(store Store) *Guard {
	return &Guard{
		Store:        store,
		TTL:          24 * time.Hour,
		WaitInterval: 50 * time.Millisecond,
	}
}

// ExecuteOnce runs fn at most once per (namespace, key) before expiry.
func (g *Guard) ExecuteOnce(ctx context.Context, namespace string, key string, fn Fn) (Outcome, error) {
	if g == nil || g.Store == nil {
		return Outcome{}, fmt.Errorf("idempotency: guard requires a record store")
	}
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return Outcome{}, fmt.Errorf("idempotency: namespace and key are required")
	}
	if fn == nil {
		return Outcome{}, fmt.Errorf("idempotency: execution fn is required")
	}

	record, owned, err := g.Store.Reserve(ctx, namespace, key, g.ttl())
	if err != nil {
		return Outcome{}, err
	}
	if owned {
		return g.execute(ctx, namespace, key, fn)
	}
	if record.Terminal() {
		return outcomeFromRecord(record, true), nil
	}
	return g.await(ctx, namespace, key)
}

func (g *Guard) execute(ctx context.Context, namespace string, key string, fn Fn) (Outcome, error) {
	result, execErr := runProtected(ctx, fn)
	if execErr != nil {
		if failErr := g.Store.Fail(ctx, namespace, key, execErr); failErr != nil {
			return Outcome{}, failErr
		}
		core.LogError(ctx, g.Logger, "idempotent execution failed", map[string]any{
			"namespace": namespace,
			"key":       key,
			"error":     execErr.Error(),
		})
		return Outcome{State: StateFailed, Err: execErr.Error()}, nil
	}
	if err := g.Store.Complete(ctx, namespace, key, result); err != nil {
		return Outcome{}, err
	}
	return Outcome{State: StateCompleted, Result: result}, nil
}

// await blocks until the owning caller's record turns terminal, adopting
// its outcome. A record reclaimed mid-wait (owner died past expiry)
// restarts the wait against the fresh record.
func (g *Guard) await(ctx context.Context, namespace string, key string) (Outcome, error) {
	if waiter, ok := g.Store.(Waiter); ok {
		record, err := waiter.Await(ctx, namespace, key)
		if err != nil {
			return Outcome{}, err
		}
		return outcomeFromRecord(record, true), nil
	}

	ticker := time.NewTicker(g.waitInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-ticker.C:
		}
		record, err := g.Store.Get(ctx, namespace, key)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			return Outcome{}, err
		}
		if record.Terminal() {
			return outcomeFromRecord(record, true), nil
		}
	}
}

func (g *Guard) ttl() time.Duration {
	if g != nil && g.TTL > 0 {
		return g.TTL
	}
	return 24 * time.Hour
}

func (g *Guard) waitInterval() time.Duration {
	if g != nil && g.WaitInterval > 0 {
		return g.WaitInterval
	}
	return 50 * time.Millisecond
}

func runProtected(ctx context.Context, fn Fn) (result map[string]any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("idempotency: execution panicked: %v", recovered)
		}
	}()
	return fn(ctx)
}

func outcomeFromRecord(record Record, replayed bool) Outcome {
	return Outcome{
		State:    record.State,
		Result:   record.Result,
		Err:      record.Err,
		Replayed: replayed,
	}
}
