package mailbox

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

const defaultItemsPerPoll = 25

// Reader fetches changed items for one subscription. It prefers the
// incremental change-token endpoint and falls back to a windowed query
// for the current invocation only; transient provider HTTP failures
// yield an empty batch instead of an error so a single subscription's
// outage cannot starve a poll run.
type Reader struct {
	Client *Client
	Logger core.Logger
	Now    core.Clock
}

func NewReader(client *Client) *Reader {
	return &Reader{Client: client}
}

func (r *Reader) FetchChanges(ctx context.Context, sub core.Subscription) (core.ChangeBatch, error) {
	if r == nil || r.Client == nil {
		return core.ChangeBatch{}, fmt.Errorf("mailbox: reader requires a client")
	}
	if err := sub.Provider.Validate(core.ProviderKindMailbox); err != nil {
		return core.ChangeBatch{}, err
	}
	now := r.now()

	if token := strings.TrimSpace(sub.Cursor.ChangeToken); token != "" {
		batch, err := r.fetchByToken(ctx, sub, token, now)
		if err == nil {
			return batch, nil
		}
		core.LogError(ctx, r.Logger, "change-token fetch failed, falling back to windowed query", map[string]any{
			"subscription_id": sub.ID,
			"error":           err.Error(),
		})
	}
	return r.fetchByWindow(ctx, sub, now), nil
}

func (r *Reader) fetchByToken(
	ctx context.Context,
	sub core.Subscription,
	token string,
	now time.Time,
) (core.ChangeBatch, error) {
	limit := itemCap(sub)
	list, err := r.Client.ListChanges(ctx, sub, token, limit)
	if err != nil {
		return core.ChangeBatch{}, err
	}
	if len(list.Changes) == 0 {
		return core.ChangeBatch{
			NextCursor: core.PollCursor{LastCheckedAt: &now, ChangeToken: token},
		}, nil
	}

	// newest first when derived from a token list
	changes := append([]changeEntry(nil), list.Changes...)
	sort.SliceStable(changes, func(i, j int) bool {
		return tokenLess(changes[j].Token, changes[i].Token)
	})
	if len(changes) > limit {
		changes = changes[:limit]
	}

	maxToken := token
	items := make([]core.InboundEvent, 0, len(changes))
	for _, change := range changes {
		maxToken = core.MaxChangeToken(maxToken, change.Token)
		message, err := r.Client.GetMessage(ctx, sub, change.MessageID)
		if err != nil {
			core.LogError(ctx, r.Logger, "item detail fetch failed, skipping item", map[string]any{
				"subscription_id": sub.ID,
				"message_id":      change.MessageID,
				"error":           err.Error(),
			})
			continue
		}
		if !sub.Filter.Match(message.Labels) {
			continue
		}
		items = append(items, newEvent(sub, message, change.Token, now))
	}
	if next := strings.TrimSpace(list.NextToken); next != "" {
		maxToken = core.MaxChangeToken(maxToken, next)
	}
	return core.ChangeBatch{
		Items:      items,
		NextCursor: core.PollCursor{LastCheckedAt: &now, ChangeToken: maxToken},
	}, nil
}

func (r *Reader) fetchByWindow(ctx context.Context, sub core.Subscription, now time.Time) core.ChangeBatch {
	query := buildQuery(sub.Filter, windowClause(now, sub.Cursor.LastCheckedAt, sub.PollIntervalMinutes()))
	limit := itemCap(sub)

	messages, err := r.Client.SearchMessages(ctx, sub, query, limit)
	if err != nil {
		core.LogError(ctx, r.Logger, "windowed query failed, cursor left unchanged", map[string]any{
			"subscription_id": sub.ID,
			"query":           query,
			"error":           err.Error(),
		})
		return core.ChangeBatch{NextCursor: sub.Cursor}
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}

	maxToken := strings.TrimSpace(sub.Cursor.ChangeToken)
	items := make([]core.InboundEvent, 0, len(messages))
	for _, message := range messages {
		maxToken = core.MaxChangeToken(maxToken, message.Token)
		if !sub.Filter.Match(message.Labels) {
			continue
		}
		items = append(items, newEvent(sub, message, message.Token, now))
	}
	return core.ChangeBatch{
		Items:      items,
		NextCursor: core.PollCursor{LastCheckedAt: &now, ChangeToken: maxToken},
	}
}

func newEvent(sub core.Subscription, message Message, token string, now time.Time) core.InboundEvent {
	return core.InboundEvent{
		SubscriptionID:  sub.ID,
		ProviderEventID: message.ID,
		Payload:         message.Payload,
		Tags:            message.Labels,
		ChangeToken:     strings.TrimSpace(token),
		DiscoveredAt:    now,
	}
}

func itemCap(sub core.Subscription) int {
	if sub.MaxItemsPerPoll > 0 {
		return sub.MaxItemsPerPoll
	}
	return defaultItemsPerPoll
}

func tokenLess(left string, right string) bool {
	leftN, leftErr := strconv.ParseUint(strings.TrimSpace(left), 10, 64)
	rightN, rightErr := strconv.ParseUint(strings.TrimSpace(right), 10, 64)
	if leftErr == nil && rightErr == nil {
		return leftN < rightN
	}
	return left < right
}

func (r *Reader) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.ChangeSource = (*Reader)(nil)
