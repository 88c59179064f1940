package admission

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-ingest/core"
)

// admissionCheckFailed envelopes limiter and resolver infrastructure
// failures so callers upstream see a mapped operation error, not a raw
// driver error.
func admissionCheckFailed(source error, message string, metadata map[string]any) error {
	err := goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.IngestErrorOperationFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
