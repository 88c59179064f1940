package pipeline

import (
	"net/url"
	"testing"
)

func TestParseBody_DirectJSON(t *testing.T) {
	parsed, err := parseBody([]byte(`{"event_id":"e-1","type":"created"}`), "application/json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Fields["event_id"] != "e-1" {
		t.Fatalf("unexpected fields: %+v", parsed.Fields)
	}
	if string(parsed.JSON) != `{"event_id":"e-1","type":"created"}` {
		t.Fatalf("unexpected document: %s", parsed.JSON)
	}
}

func TestParseBody_FormEncodedPayloadWrapper(t *testing.T) {
	form := url.Values{}
	form.Set("payload", `{"event_id":"e-2"}`)

	parsed, err := parseBody([]byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Fields["event_id"] != "e-2" {
		t.Fatalf("unexpected fields: %+v", parsed.Fields)
	}
	// raw body keeps the signed form bytes
	if string(parsed.Raw) != form.Encode() {
		t.Fatalf("raw body rewritten: %s", parsed.Raw)
	}
}

func TestParseBody_RejectsEmptyBody(t *testing.T) {
	if _, err := parseBody(nil, "application/json"); err == nil {
		t.Fatal("expected empty-body rejection")
	}
	if _, err := parseBody([]byte("   "), "application/json"); err == nil {
		t.Fatal("expected blank-body rejection")
	}
}

func TestParseBody_RejectsEmptyObject(t *testing.T) {
	if _, err := parseBody([]byte(`{}`), "application/json"); err == nil {
		t.Fatal("expected empty-object rejection")
	}
}

func TestParseBody_RejectsFormWithoutPayload(t *testing.T) {
	if _, err := parseBody([]byte("token=abc"), "application/x-www-form-urlencoded"); err == nil {
		t.Fatal("expected missing-payload rejection")
	}
}

func TestStringField_DottedPaths(t *testing.T) {
	fields := map[string]any{
		"event": map[string]any{"id": "nested-1"},
		"id":    "top-1",
	}
	if got := stringField(fields, "event_id", "event.id"); got != "nested-1" {
		t.Fatalf("expected nested id, got %q", got)
	}
	if got := stringField(fields, "missing", "id"); got != "top-1" {
		t.Fatalf("expected top-level id, got %q", got)
	}
	if got := stringField(fields, "missing"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
