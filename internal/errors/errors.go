package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	// Collection outcome codes. The retry controller keys its behavior off
	// these, so constructors below are the only place they get attached.
	ErrCodeRetryable      ErrCode = "RETRYABLE"
	ErrCodeRateLimited    ErrCode = "RATE_LIMITED"
	ErrCodeAuthFailed     ErrCode = "AUTH_FAILED"
	ErrCodeQueryFailed    ErrCode = "QUERY_FAILED"
	ErrCodeRetryExhausted ErrCode = "RETRY_EXHAUSTED"

	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrCode = "INVALID_INPUT"
	ErrCodeStorage      ErrCode = "STORAGE_ERROR"
	ErrCodeConfig       ErrCode = "CONFIG_ERROR"
	ErrCodeInternal     ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewRetryableError marks a transient failure worth retrying
func NewRetryableError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRetryable,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitedError marks a soft rate-limit rejection
func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
	}
}

// NewAuthFailedError marks a credential rejection; never retried
func NewAuthFailedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeAuthFailed,
		Message: message,
	}
}

// NewQueryFailedError marks a request the API rejected as invalid; never retried
func NewQueryFailedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeQueryFailed,
		Message: message,
		Err:     err,
	}
}

// NewRetryExhaustedError wraps the last error seen once the retry budget is spent
func NewRetryExhaustedError(op string, attempts int, last error) *AppError {
	return &AppError{
		Code:    ErrCodeRetryExhausted,
		Message: fmt.Sprintf("%s: gave up after %d attempts", op, attempts),
		Err:     last,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}

// NewStorageError creates a new storage error
func NewStorageError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeStorage,
		Message: message,
		Err:     err,
	}
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConfig,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

func hasCode(err error, code ErrCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable checks if the error is a transient, retryable failure
func IsRetryable(err error) bool {
	return hasCode(err, ErrCodeRetryable)
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return hasCode(err, ErrCodeRateLimited)
}

// IsAuthFailed checks if the error is a credential rejection
func IsAuthFailed(err error) bool {
	return hasCode(err, ErrCodeAuthFailed)
}

// IsQueryFailed checks if the error is an API-reported query error
func IsQueryFailed(err error) bool {
	return hasCode(err, ErrCodeQueryFailed)
}

// IsRetryExhausted checks if the error is an exhausted retry budget
func IsRetryExhausted(err error) bool {
	return hasCode(err, ErrCodeRetryExhausted)
}

// IsFatal reports whether retrying can never succeed
func IsFatal(err error) bool {
	return IsAuthFailed(err) || IsQueryFailed(err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}
