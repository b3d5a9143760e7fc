package api

import (
	"context"
	"errors"
	"net/http"

	"pastiche/internal/services"
)

// ErrorCategory is the stable external name of a failure.
type ErrorCategory string

const (
	CategoryUnknownFilter ErrorCategory = "unknown_filter"
	CategoryFilterFailed  ErrorCategory = "filter_failed"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryStorage       ErrorCategory = "storage"
	CategoryInvalidInput  ErrorCategory = "invalid_input"
	CategoryUnavailable   ErrorCategory = "unavailable"
	CategoryInternal      ErrorCategory = "internal"
)

// Classify maps an error to its external category. Nil maps to "".
func Classify(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, services.ErrUnknownFilter):
		return CategoryUnknownFilter
	case errors.Is(err, services.ErrFilterExecution):
		return CategoryFilterFailed
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, services.ErrArtifactNotFound):
		return CategoryNotFound
	case errors.Is(err, services.ErrValidation):
		return CategoryInvalidInput
	case errors.Is(err, services.ErrQueueClosed), errors.Is(err, context.Canceled):
		return CategoryUnavailable
	case errors.Is(err, services.ErrStorage), errors.Is(err, services.ErrRegistryLoad):
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// Message is the fixed client-facing text for the category. Error chains
// name internal components and stay in the log.
func (c ErrorCategory) Message() string {
	switch c {
	case CategoryUnknownFilter:
		return "unknown filter"
	case CategoryFilterFailed:
		return "filter could not be applied to the image"
	case CategoryTimeout:
		return "timed out waiting for the job; it keeps running"
	case CategoryNotFound:
		return "not found"
	case CategoryInvalidInput:
		return "invalid request"
	case CategoryUnavailable:
		return "service is shutting down"
	default:
		return "internal error, see daemon log"
	}
}

// ClientMessage renders err for clients. Only invalid input adds the
// caller-facing reason recorded by services.Wrap.
func ClientMessage(err error) string {
	category := Classify(err)
	message := category.Message()
	if category == CategoryInvalidInput {
		if reason := services.Details(err).Message; reason != "" {
			message += ": " + reason
		}
	}
	return message
}

// HTTPStatus returns the response status for the category.
func (c ErrorCategory) HTTPStatus() int {
	switch c {
	case "":
		return http.StatusOK
	case CategoryUnknownFilter, CategoryInvalidInput:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryFilterFailed:
		return http.StatusUnprocessableEntity
	case CategoryTimeout:
		return http.StatusGatewayTimeout
	case CategoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
