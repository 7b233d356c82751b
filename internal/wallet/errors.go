package wallet

import "fmt"

type ErrorCode string

const (
	ErrCodeUnauthorized      ErrorCode = "unauthorized"
	ErrCodeNotFound          ErrorCode = "not_found"
	ErrCodeMalformedRequest  ErrorCode = "malformed_request"
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrCodeRequestTooLarge   ErrorCode = "request_too_large"
	ErrCodeNotConfigured     ErrorCode = "not_configured"
	ErrCodeInternalError     ErrorCode = "internal_error"
)

// WalletError represents a structured error from the wallet package
type WalletError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *WalletError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *WalletError) Code() ErrorCode { return e.code }
func (e *WalletError) Unwrap() error   { return e.wrapped }

// NewUnauthorizedError creates an error for a missing or invalid
// authentication token. Mapped to 401; the reason is only logged.
func NewUnauthorizedError(msg string) error {
	return &WalletError{code: ErrCodeUnauthorized, message: msg}
}

// NewNotFoundError creates an error for an unknown pass or registration.
func NewNotFoundError(msg string) error {
	return &WalletError{code: ErrCodeNotFound, message: msg}
}

// NewMalformedRequestError creates an error for a request the handler cannot
// parse or that fails validation.
func NewMalformedRequestError(msg string) error {
	return &WalletError{code: ErrCodeMalformedRequest, message: msg}
}

// WrapMalformedRequestError wraps a parse failure as a malformed request.
func WrapMalformedRequestError(err error, msg string) error {
	return &WalletError{code: ErrCodeMalformedRequest, message: msg, wrapped: err}
}

// NewRateLimitExceededError creates an error for a caller over its request
// budget. Mapped to 429.
func NewRateLimitExceededError(msg string) error {
	return &WalletError{code: ErrCodeRateLimitExceeded, message: msg}
}

// NewRequestTooLargeError creates an error for a request body over the size
// limit. Mapped to 413.
func NewRequestTooLargeError(msg string) error {
	return &WalletError{code: ErrCodeRequestTooLarge, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &WalletError{code: ErrCodeInternalError, message: msg}
}

// WrapInternalError wraps an unexpected failure as an internal error.
func WrapInternalError(err error, msg string) error {
	return &WalletError{code: ErrCodeInternalError, message: msg, wrapped: err}
}
