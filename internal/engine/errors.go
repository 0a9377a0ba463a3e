package engine

import (
	"errors"
	"fmt"
)

// CheckError represents a classified failure during a poll cycle.
//
// Check errors include:
//   - Missing credentials: no token store exists yet
//   - Auth failure: token missing/invalid and refresh failed or was rejected
//   - Transient failure: network error or timeout, retryable by the caller
//   - Not found: unknown order reference
//   - Cache miss: explicit cached read with nothing cached
//
// CheckError carries the affected order reference where one applies.
type CheckError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Reference identifies the affected order, empty for run-level errors.
	Reference string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes check errors.
type ErrorCode string

const (
	// ErrCodeMissingCredentials indicates no token store exists yet.
	ErrCodeMissingCredentials ErrorCode = "MISSING_CREDENTIALS"

	// ErrCodeAuth indicates the token was rejected or could not be refreshed.
	ErrCodeAuth ErrorCode = "AUTH_ERROR"

	// ErrCodeTransient indicates a network failure or timeout. No internal
	// retry is attempted; the caller decides retry policy.
	ErrCodeTransient ErrorCode = "TRANSIENT_ERROR"

	// ErrCodeNotFound indicates an unknown order reference.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeCacheMiss indicates a forced cached read found nothing. This is
	// a hard error and never falls through to a live fetch.
	ErrCodeCacheMiss ErrorCode = "CACHE_MISS"
)

// Error implements the error interface.
func (e *CheckError) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("%s: %s (order=%s)", e.Code, e.Message, e.Reference)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CheckError) Unwrap() error {
	return e.Err
}

// codeOf extracts the ErrorCode from an error chain, or "" if none.
func codeOf(err error) ErrorCode {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsAuthError reports whether the error is an auth failure.
// Uses errors.As to handle wrapped errors.
func IsAuthError(err error) bool {
	return codeOf(err) == ErrCodeAuth
}

// IsTransient reports whether the error is a network/timeout failure.
func IsTransient(err error) bool {
	return codeOf(err) == ErrCodeTransient
}

// IsNotFound reports whether the error is an unknown-reference failure.
func IsNotFound(err error) bool {
	return codeOf(err) == ErrCodeNotFound
}

// IsCacheMiss reports whether the error is a forced-cache miss.
func IsCacheMiss(err error) bool {
	return codeOf(err) == ErrCodeCacheMiss
}

// IsMissingCredentials reports whether the error is a missing token store.
func IsMissingCredentials(err error) bool {
	return codeOf(err) == ErrCodeMissingCredentials
}

// NewMissingCredentials creates a CheckError for an absent token store.
func NewMissingCredentials() *CheckError {
	return &CheckError{
		Code:    ErrCodeMissingCredentials,
		Message: "no stored credentials; run an interactive login first",
	}
}

// NewAuthError creates a CheckError for a rejected or unrefreshable token.
func NewAuthError(message string, err error) *CheckError {
	return &CheckError{Code: ErrCodeAuth, Message: message, Err: err}
}

// NewTransientError creates a CheckError for a network failure or timeout.
func NewTransientError(message string, err error) *CheckError {
	return &CheckError{Code: ErrCodeTransient, Message: message, Err: err}
}

// NewNotFoundError creates a CheckError for an unknown order reference.
func NewNotFoundError(reference string) *CheckError {
	return &CheckError{
		Code:      ErrCodeNotFound,
		Message:   "unknown order reference",
		Reference: reference,
	}
}

// NewCacheMissError creates a CheckError for a forced cached read with no
// stored entry.
func NewCacheMissError(reference string) *CheckError {
	return &CheckError{
		Code:      ErrCodeCacheMiss,
		Message:   "no cached snapshot for reference",
		Reference: reference,
	}
}
