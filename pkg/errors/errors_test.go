package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "provider read failed")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to satisfy errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", err.Code())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	inner := New(CodeNotFound, "variant missing")
	outer := fmt.Errorf("resolving event: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error through fmt wrapping")
	}
	if typed.Code() != CodeNotFound {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
	if !HasCode(outer, CodeNotFound) {
		t.Fatal("expected HasCode to match through wrapping")
	}
}

func TestMetadataFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", meta.HTTPStatus)
	}
}

func TestDependencyIsRetryable(t *testing.T) {
	if !MetadataFor(CodeDependency).Retryable {
		t.Fatal("dependency errors should be retryable")
	}
	if MetadataFor(CodeValidation).Retryable {
		t.Fatal("validation errors should not be retryable")
	}
}
