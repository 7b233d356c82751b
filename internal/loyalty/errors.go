package loyalty

import "fmt"

type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInactive   ErrorCode = "inactive"
	ErrCodeInternal   ErrorCode = "internal"
)

// LoyaltyError represents a structured error from the loyalty package
type LoyaltyError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *LoyaltyError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *LoyaltyError) Code() ErrorCode { return e.code }
func (e *LoyaltyError) Unwrap() error   { return e.wrapped }

// NewNotFoundError creates an error for an unknown serial number.
func NewNotFoundError(msg string) error {
	return &LoyaltyError{code: ErrCodeNotFound, message: msg}
}

// NewValidationError creates an error for a request the engine rejects
// (negative delta, preview barcode, unsupported loyalty type).
func NewValidationError(msg string) error {
	return &LoyaltyError{code: ErrCodeValidation, message: msg}
}

// NewInactiveError creates an error for a scan against a deactivated pass.
func NewInactiveError(msg string) error {
	return &LoyaltyError{code: ErrCodeInactive, message: msg}
}

// WrapInternalError wraps a store failure.
func WrapInternalError(err error, msg string) error {
	return &LoyaltyError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// CodeOf extracts the loyalty error code from an error chain, or
// ErrCodeInternal when the error is not a LoyaltyError.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if le, ok := err.(*LoyaltyError); ok {
			return le.code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrCodeInternal
}
