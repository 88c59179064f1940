package pipeline

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-ingest/core"
)

func pipelineError(message string, category goerrors.Category, code int, textCode string) error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func pipelineWrapError(source error, category goerrors.Category, message string, code int, textCode string) error {
	if source == nil {
		return pipelineError(message, category, code, textCode)
	}
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
}

func pipelineBadInput(message string) error {
	return pipelineError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.IngestErrorBadInput,
	)
}

func pipelineNotFound(message string) error {
	return pipelineError(
		message,
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		core.IngestErrorNotFound,
	)
}

func pipelineUnauthorized(source error, message string) error {
	return pipelineWrapError(
		source,
		goerrors.CategoryAuth,
		message,
		http.StatusUnauthorized,
		core.IngestErrorUnauthorized,
	)
}
