package core

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestIngestErrorMapper_EnvelopesPlainErrors(t *testing.T) {
	mapped := IngestErrorMapper(errors.New("boom"))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.Code == 0 {
		t.Fatalf("expected HTTP status to be filled in")
	}
	if mapped.TextCode == "" {
		t.Fatalf("expected text code to be filled in")
	}
}

func TestIngestErrorMapper_PreservesRichErrors(t *testing.T) {
	source := goerrors.New("denied", goerrors.CategoryRateLimit)
	mapped := IngestErrorMapper(source)
	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit status, got %d", mapped.Code)
	}
	if mapped.TextCode != IngestErrorRateLimited {
		t.Fatalf("expected %s, got %s", IngestErrorRateLimited, mapped.TextCode)
	}
}

func TestIngestErrorMapper_NilPassthrough(t *testing.T) {
	if IngestErrorMapper(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
