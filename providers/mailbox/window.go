package mailbox

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
)

// windowClause builds the time bound of a windowed query, sized by how
// recently the subscription was last checked:
//
//   - under an hour old: an absolute epoch cutoff of last-checked minus
//     a buffer of max(2 x poll-interval-minutes, 3 minutes), so items
//     that raced the previous poll are re-observed;
//   - under a day old: a relative hour clause one hour wider than the gap;
//   - older, or never checked: a relative day clause capped at 8 days.
func windowClause(now time.Time, lastCheckedAt *time.Time, pollIntervalMinutes int) string {
	if lastCheckedAt == nil {
		return "newer_than:1d"
	}
	age := now.Sub(lastCheckedAt.UTC())
	if age < 0 {
		age = 0
	}

	if age < time.Hour {
		if pollIntervalMinutes < 1 {
			pollIntervalMinutes = 1
		}
		bufferSeconds := 2 * pollIntervalMinutes * 60
		if bufferSeconds < 180 {
			bufferSeconds = 180
		}
		cutoff := lastCheckedAt.UTC().Add(-time.Duration(bufferSeconds) * time.Second)
		return "after:" + strconv.FormatInt(cutoff.Unix(), 10)
	}

	minutes := int(age / time.Minute)
	if age < 24*time.Hour {
		hours := (minutes+59)/60 + 1
		return "newer_than:" + strconv.Itoa(hours) + "h"
	}

	days := (minutes + 1439) / 1440
	if days > 7 {
		days = 7
	}
	return "newer_than:" + strconv.Itoa(days+1) + "d"
}

// buildQuery combines the subscription filter with the time window into
// the provider's search syntax.
func buildQuery(filter core.FilterConfig, clause string) string {
	parts := make([]string, 0, len(filter.IncludeTags)+len(filter.ExcludeTags)+1)
	for _, tag := range filter.IncludeTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			parts = append(parts, "label:"+tag)
		}
	}
	for _, tag := range filter.ExcludeTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			parts = append(parts, "-label:"+tag)
		}
	}
	parts = append(parts, clause)
	return strings.Join(parts, " ")
}
