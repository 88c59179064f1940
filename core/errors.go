package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorBadInput        = "INGEST_BAD_INPUT"
	IngestErrorNotFound        = "INGEST_NOT_FOUND"
	IngestErrorUnauthorized    = "INGEST_UNAUTHORIZED"
	IngestErrorRateLimited     = "INGEST_RATE_LIMITED"
	IngestErrorProviderFailed  = "INGEST_PROVIDER_FAILED"
	IngestErrorDispatchFailed  = "INGEST_DISPATCH_FAILED"
	IngestErrorOperationFailed = "INGEST_OPERATION_FAILED"
	IngestErrorInternal        = "INGEST_INTERNAL_ERROR"
)

// IngestErrorMapper normalizes any error into the go-errors envelope
// with an ingest text code and an HTTP status derived from its category.
func IngestErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIngestEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIngestEnvelope(mapped)
}

func ensureIngestEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = ingestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIngestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIngestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IngestErrorBadInput
	case goerrors.CategoryNotFound:
		return IngestErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IngestErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return IngestErrorRateLimited
	case goerrors.CategoryExternal:
		return IngestErrorProviderFailed
	case goerrors.CategoryOperation:
		return IngestErrorOperationFailed
	default:
		return IngestErrorInternal
	}
}

func ingestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
