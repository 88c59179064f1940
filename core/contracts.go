package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SubscriptionStore is the configuration collaborator surface this
// subsystem reads from and writes cursors back to. AdvanceCursor is a
// merge-patch: only the cursor fields change, everything else on the
// subscription is preserved, and the change token never regresses.
type SubscriptionStore interface {
	ListActive(ctx context.Context, kind ProviderKind) ([]Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	GetByRoute(ctx context.Context, route string) (Subscription, error)
	AdvanceCursor(ctx context.Context, id string, cursor PollCursor) error
}

// CredentialSource returns a valid bearer token for a credential
// reference, transparently refreshing an expired one. Failure to produce
// a token is terminal for that subscription or request only.
type CredentialSource interface {
	BearerToken(ctx context.Context, credentialRef string) (string, error)
}

// ChangeSource fetches changed items for one subscription. It must not
// return an error for transient provider HTTP failures; those yield an
// empty batch so one subscription's outage cannot starve a poll run.
type ChangeSource interface {
	FetchChanges(ctx context.Context, sub Subscription) (ChangeBatch, error)
}

// Dispatcher hands a validated envelope to the durable queue or inline
// execution path, guarded for at-most-once semantics.
type Dispatcher interface {
	Dispatch(ctx context.Context, envelope DispatchEnvelope) (DispatchOutcome, error)
}

// DurableQueue enqueues a named task for asynchronous consumption.
// Presence is controlled by a single configuration switch; absence
// activates the inline execution fallback.
type DurableQueue interface {
	Enqueue(ctx context.Context, name string, payload []byte) (string, error)
}

// TriggerResult reports one downstream trigger call.
type TriggerResult struct {
	StatusCode int
	Body       []byte
}

// TriggerClient is the downstream workflow execution contract. A non-2xx
// response is a dispatch failure for idempotency purposes.
type TriggerClient interface {
	Trigger(ctx context.Context, envelope DispatchEnvelope) (TriggerResult, error)
}

// ActorResolver maps a subscription to the attributed actor billed and
// rate limited for its dispatches. ErrActorNotResolved means the
// pipeline soft-accepts without dispatching.
type ActorResolver interface {
	ResolveActor(ctx context.Context, sub Subscription) (string, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Clock is the injected time source every stateful component carries.
type Clock func() time.Time

func ResolveClock(now Clock) Clock {
	if now != nil {
		return func() time.Time { return now().UTC() }
	}
	return func() time.Time { return time.Now().UTC() }
}
