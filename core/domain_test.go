package core

import (
	"testing"
	"time"
)

func TestEventFingerprint_DeterministicAndDistinct(t *testing.T) {
	first := EventFingerprint(ProviderKindMailbox, "sub-1", "msg-100")
	second := EventFingerprint(ProviderKindMailbox, "sub-1", "msg-100")
	if first != second {
		t.Fatalf("expected identical inputs to yield identical fingerprints")
	}
	if first == EventFingerprint(ProviderKindMailbox, "sub-2", "msg-100") {
		t.Fatalf("expected distinct subscriptions to yield distinct fingerprints")
	}
	if first == EventFingerprint(ProviderKindMailbox, "sub-1", "msg-101") {
		t.Fatalf("expected distinct event ids to yield distinct fingerprints")
	}
	if first != EventFingerprint(ProviderKindMailbox, " sub-1 ", " msg-100 ") {
		t.Fatalf("expected surrounding whitespace to be normalized")
	}
}

func TestMaxChangeToken_NumericAndLexicographic(t *testing.T) {
	if got := MaxChangeToken("100", "99"); got != "100" {
		t.Fatalf("expected numeric comparison, got %q", got)
	}
	if got := MaxChangeToken("99", "100"); got != "100" {
		t.Fatalf("expected numeric comparison, got %q", got)
	}
	if got := MaxChangeToken("", "42"); got != "42" {
		t.Fatalf("expected candidate to win over empty token, got %q", got)
	}
	if got := MaxChangeToken("42", ""); got != "42" {
		t.Fatalf("expected stored token preserved over empty candidate, got %q", got)
	}
	if got := MaxChangeToken("abc", "abd"); got != "abd" {
		t.Fatalf("expected lexicographic fallback, got %q", got)
	}
}

func TestFilterConfig_Match(t *testing.T) {
	filter := FilterConfig{
		IncludeTags: []string{"INBOX"},
		ExcludeTags: []string{"SPAM"},
	}
	if !filter.Match([]string{"inbox", "important"}) {
		t.Fatalf("expected included tag match to keep item")
	}
	if filter.Match([]string{"inbox", "spam"}) {
		t.Fatalf("expected excluded tag to drop item")
	}
	if filter.Match([]string{"archive"}) {
		t.Fatalf("expected missing include tag to drop item")
	}

	keepAll := FilterConfig{ExcludeTags: []string{"TRASH"}}
	if !keepAll.Match([]string{"anything"}) {
		t.Fatalf("expected empty include list to keep all items")
	}
	if keepAll.Match([]string{"trash"}) {
		t.Fatalf("expected exclude list to apply with empty include list")
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	if err := (ProviderConfig{}).Validate(ProviderKindMailbox); err == nil {
		t.Fatalf("expected mailbox config to be required")
	}
	cfg := ProviderConfig{Mailbox: &MailboxProviderConfig{BaseURL: "https://mail.example.com"}}
	if err := cfg.Validate(ProviderKindMailbox); err != nil {
		t.Fatalf("validate mailbox config: %v", err)
	}
	if err := (ProviderConfig{}).Validate(ProviderKindGeneric); err != nil {
		t.Fatalf("expected generic config to be optional: %v", err)
	}
	if err := (ProviderConfig{}).Validate(ProviderKind("bogus")); err == nil {
		t.Fatalf("expected unknown provider kind to fail validation")
	}
}

func TestSubscription_PollIntervalMinutes(t *testing.T) {
	sub := Subscription{PollInterval: 2 * time.Minute}
	if got := sub.PollIntervalMinutes(); got != 2 {
		t.Fatalf("expected 2 minutes, got %d", got)
	}
	if got := (Subscription{}).PollIntervalMinutes(); got != 1 {
		t.Fatalf("expected floor of 1 minute, got %d", got)
	}
}

func TestHeaderValue_CaseInsensitive(t *testing.T) {
	headers := map[string]string{"X-Delivery-Id": " abc "}
	if got := HeaderValue(headers, "x-delivery-id"); got != "abc" {
		t.Fatalf("expected trimmed case-insensitive lookup, got %q", got)
	}
	if got := HeaderValue(nil, "x-delivery-id"); got != "" {
		t.Fatalf("expected empty result for nil headers, got %q", got)
	}
}
