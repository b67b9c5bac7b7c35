package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeStore represents store availability errors (pool exhaustion, busy database)
	ErrTypeStore ErrorType = "store"
	// ErrTypeTransaction represents a rolled-back multi-statement mutation
	ErrTypeTransaction ErrorType = "transaction"
	// ErrTypeNotFound represents a missing update/delete target
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeExtraction represents remote fetch or manifest parsing errors
	ErrTypeExtraction ErrorType = "extraction"
	// ErrTypeCancelled represents a user-requested stop
	ErrTypeCancelled ErrorType = "cancelled"
	// ErrTypeSidecar represents unreadable or malformed sidecar metadata
	ErrTypeSidecar ErrorType = "sidecar"
	// ErrTypeFileSystem represents file system errors
	ErrTypeFileSystem ErrorType = "filesystem"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a store availability error. Busy/locked-class failures
// are retryable by the caller.
func NewStoreError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeStore,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewTransactionError creates an error for a mutation that was rolled back.
// The store is left untouched, so the whole operation may be retried.
func NewTransactionError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeTransaction,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeNotFound,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewExtractionError creates an error for a failed remote fetch or probe
func NewExtractionError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeExtraction,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewCancelledError creates an error signalling a user-requested stop.
// It is terminal for the job but not a failure.
func NewCancelledError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeCancelled,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewSidecarError creates an error for unreadable sidecar metadata.
// Callers fall back to defaults, so this is never fatal.
func NewSidecarError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeSidecar,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeFileSystem,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeValidation,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}

// IsCancelled checks if an error is a user cancellation
func IsCancelled(err error) bool {
	return GetErrorType(err) == ErrTypeCancelled
}

// IsStoreError checks if an error is a store availability error
func IsStoreError(err error) bool {
	return GetErrorType(err) == ErrTypeStore
}

// IsExtractionError checks if an error is an extraction error
func IsExtractionError(err error) bool {
	return GetErrorType(err) == ErrTypeExtraction
}
