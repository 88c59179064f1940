package mailbox

import (
	"strconv"
	"testing"
	"time"

	"github.com/goliatone/go-ingest/core"
)

func TestWindowClause_RecentUsesAbsoluteCutoffWithBuffer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastChecked := now.Add(-10 * time.Minute)

	// buffer = max(2 x 2 x 60, 180) = 240 seconds
	clause := windowClause(now, &lastChecked, 2)
	want := "after:" + strconv.FormatInt(lastChecked.Add(-240*time.Second).Unix(), 10)
	if clause != want {
		t.Fatalf("expected %q, got %q", want, clause)
	}

	// tiny interval floors at the 180 second buffer
	clause = windowClause(now, &lastChecked, 1)
	want = "after:" + strconv.FormatInt(lastChecked.Add(-180*time.Second).Unix(), 10)
	if clause != want {
		t.Fatalf("expected %q, got %q", want, clause)
	}
}

func TestWindowClause_HoursForSameDayGap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastChecked := now.Add(-5 * time.Hour)
	if clause := windowClause(now, &lastChecked, 5); clause != "newer_than:6h" {
		t.Fatalf("expected newer_than:6h, got %q", clause)
	}
}

func TestWindowClause_DaysForOlderGapCappedAtEight(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	lastChecked := now.Add(-3 * 24 * time.Hour)
	if clause := windowClause(now, &lastChecked, 5); clause != "newer_than:4d" {
		t.Fatalf("expected newer_than:4d, got %q", clause)
	}

	lastChecked = now.Add(-30 * 24 * time.Hour)
	if clause := windowClause(now, &lastChecked, 5); clause != "newer_than:8d" {
		t.Fatalf("expected cap at newer_than:8d, got %q", clause)
	}
}

func TestWindowClause_NoTimestampDefaultsToOneDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if clause := windowClause(now, nil, 5); clause != "newer_than:1d" {
		t.Fatalf("expected newer_than:1d, got %q", clause)
	}
}

func TestBuildQuery_CombinesFilterAndWindow(t *testing.T) {
	filter := core.FilterConfig{
		IncludeTags: []string{"INBOX"},
		ExcludeTags: []string{"SPAM"},
	}
	query := buildQuery(filter, "newer_than:1d")
	if query != "label:INBOX -label:SPAM newer_than:1d" {
		t.Fatalf("unexpected query %q", query)
	}

	if query := buildQuery(core.FilterConfig{}, "newer_than:6h"); query != "newer_than:6h" {
		t.Fatalf("unexpected query %q", query)
	}
}
