package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegistryLoad means no usable filters could be loaded. Fatal at startup.
	ErrRegistryLoad = errors.New("registry load error")
	// ErrUnknownFilter means the requested filter name is not registered.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrFilterExecution means a transform failed on the given input.
	ErrFilterExecution = errors.New("filter execution error")
	// ErrArtifactNotFound means an artifact id does not resolve.
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrTimeout          = errors.New("timeout")
	// ErrStorage marks filesystem or index failures in the artifact store.
	ErrStorage = errors.New("storage io error")
	// ErrValidation marks caller input that cannot be processed at all, such as
	// bytes that do not decode as an image.
	ErrValidation = errors.New("validation error")
	// ErrQueueClosed is returned by the job pool once shutdown has begun.
	ErrQueueClosed = errors.New("job queue closed")
)

var markers = []error{
	ErrRegistryLoad,
	ErrUnknownFilter,
	ErrFilterExecution,
	ErrArtifactNotFound,
	ErrTimeout,
	ErrStorage,
	ErrValidation,
	ErrQueueClosed,
}

// ErrorDetails is the structured view of an error produced by Wrap.
type ErrorDetails struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Cause     error
}

type wrappedError struct {
	marker    error
	component string
	operation string
	message   string
	cause     error
}

func (e *wrappedError) Error() string {
	detail := buildDetail(e.component, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *wrappedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above; nil defaults to ErrStorage.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrStorage
	}
	return &wrappedError{
		marker:    marker,
		component: strings.TrimSpace(component),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
}

// Details extracts the outermost Wrap context from err. Errors that were not
// produced by Wrap still get a Kind when they match a known marker.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var wrapped *wrappedError
	if errors.As(err, &wrapped) {
		return ErrorDetails{
			Kind:      kindOf(wrapped.marker),
			Component: wrapped.component,
			Operation: wrapped.operation,
			Message:   wrapped.message,
			Cause:     wrapped.cause,
		}
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return ErrorDetails{Kind: kindOf(marker), Message: err.Error()}
		}
	}
	return ErrorDetails{Kind: "unknown", Message: err.Error(), Cause: err}
}

func kindOf(marker error) string {
	switch marker {
	case ErrRegistryLoad:
		return "registry_load"
	case ErrUnknownFilter:
		return "unknown_filter"
	case ErrFilterExecution:
		return "filter_execution"
	case ErrArtifactNotFound:
		return "artifact_not_found"
	case ErrTimeout:
		return "timeout"
	case ErrStorage:
		return "storage"
	case ErrValidation:
		return "validation"
	case ErrQueueClosed:
		return "queue_closed"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
