package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pastiche/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("disk full")
	err := services.Wrap(services.ErrStorage, "artifact", "write", "rename into place", base)
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"artifact", "write", "rename into place", "disk full"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrUnknownFilter, "filters", "resolve", "", nil)
	if !errors.Is(err, services.ErrUnknownFilter) {
		t.Fatalf("expected unknown filter marker, got %v", err)
	}
	if got := err.Error(); got != "unknown filter: filters: resolve" {
		t.Fatalf("unexpected message %q", got)
	}
	if services.Wrap(nil, "", "", "", nil).Error() != "storage io error: service failure" {
		t.Fatal("expected nil marker to default to storage")
	}
}

func TestDetails(t *testing.T) {
	inner := services.Wrap(services.ErrFilterExecution, "filters", "apply", "decode input", errors.New("bad header"))
	outer := fmt.Errorf("job abc: %w", inner)

	details := services.Details(outer)
	if details.Kind != "filter_execution" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Component != "filters" || details.Operation != "apply" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Cause == nil || details.Cause.Error() != "bad header" {
		t.Fatalf("expected cause to be kept, got %v", details.Cause)
	}

	bare := services.Details(fmt.Errorf("await: %w", services.ErrTimeout))
	if bare.Kind != "timeout" {
		t.Fatalf("expected timeout kind for bare marker, got %q", bare.Kind)
	}
	if services.Details(errors.New("other")).Kind != "unknown" {
		t.Fatal("expected unknown kind for unmarked error")
	}
	if services.Details(nil) != (services.ErrorDetails{}) {
		t.Fatal("expected zero details for nil")
	}
}
