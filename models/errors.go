package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes carried by FetchOutcome.ErrorKind and API responses.
const (
	ErrCodePoolInit           = "POOL_INITIALIZATION_FAILED"
	ErrCodeEmptyPool          = "EMPTY_POOL"
	ErrCodeSubmissionFailed   = "SUBMISSION_FAILED"
	ErrCodeNavigationTimeout  = "NAVIGATION_TIMEOUT"
	ErrCodeInteractionTimeout = "INTERACTION_TIMEOUT"
	ErrCodeTransport          = "TRANSPORT_ERROR"
	ErrCodeUnknown            = "UNKNOWN_TASK_ERROR"
	ErrCodeCanceled           = "CANCELED"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// MsgSubmissionFailed is the message attached to every SUBMISSION_FAILED outcome.
const MsgSubmissionFailed = "could not find or click the search button"

// ErrEmptyPool is returned when a context is requested from a pool with no contexts.
var ErrEmptyPool = NewFetchError(ErrCodeEmptyPool, "resource pool has no execution contexts", nil)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FetchError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type FetchError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches two FetchErrors by code so sentinels work with errors.Is.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && t.Code == e.Code
}

// NewFetchError creates a new FetchError.
func NewFetchError(code, message string, err error) *FetchError {
	return &FetchError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *FetchError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Classify wraps raw errors into a typed FetchError. timeoutCode is used when
// err is a deadline expiry, so callers decide whether a timeout belongs to the
// navigation or the interaction phase.
func Classify(err error, timeoutCode, msg string) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewFetchError(timeoutCode, msg, err)
	case errors.Is(err, context.Canceled):
		return NewFetchError(ErrCodeCanceled, "task canceled", err)
	default:
		return NewFetchError(ErrCodeTransport, msg, err)
	}
}

// CodeOf returns the FetchError code of err, or ErrCodeUnknown.
func CodeOf(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ErrCodeUnknown
}

// Retryable reports whether a failed attempt may succeed when repeated.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNavigationTimeout, ErrCodeTransport:
		return true
	}
	return false
}
