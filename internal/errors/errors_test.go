package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewTransactionError("ingest failed", errors.New("constraint violated"))

	msg := err.Error()
	if !strings.Contains(msg, "transaction") {
		t.Errorf("Expected error type in message, got %s", msg)
	}
	if !strings.Contains(msg, "constraint violated") {
		t.Errorf("Expected cause in message, got %s", msg)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := NewStoreError("acquire connection", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to match the underlying cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"store error", NewStoreError("busy", nil), true},
		{"transaction error", NewTransactionError("rolled back", nil), true},
		{"extraction error", NewExtractionError("fetch failed", nil), true},
		{"not found", NewNotFoundError("song 42"), false},
		{"cancelled", NewCancelledError("stop requested"), false},
		{"sidecar", NewSidecarError("bad json", nil), false},
		{"validation", NewValidationError("empty url"), false},
		{"plain error", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestGetErrorType_Wrapped(t *testing.T) {
	err := fmt.Errorf("ingest: %w", NewNotFoundError("song 7"))

	if GetErrorType(err) != ErrTypeNotFound {
		t.Errorf("Expected not_found through wrapping, got %s", GetErrorType(err))
	}
	if !IsNotFound(err) {
		t.Error("Expected IsNotFound to see through fmt.Errorf wrapping")
	}
}

func TestGetErrorType_Unknown(t *testing.T) {
	if GetErrorType(errors.New("plain")) != ErrTypeUnknown {
		t.Error("Expected unknown type for plain error")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(NewCancelledError("stopped")) {
		t.Error("Expected IsCancelled for cancelled error")
	}
	if IsCancelled(NewStoreError("busy", nil)) {
		t.Error("Did not expect IsCancelled for store error")
	}
}
