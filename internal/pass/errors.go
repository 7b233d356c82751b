package pass

import "fmt"

type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeSigning    ErrorCode = "signing"
	ErrCodeInternal   ErrorCode = "internal"
)

// PassError represents a structured error from the pass package
type PassError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *PassError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *PassError) Code() ErrorCode { return e.code }
func (e *PassError) Unwrap() error   { return e.wrapped }

// NewValidationError creates an error for bad builder input (missing serial,
// malformed barcode payload, unsupported design rules).
func NewValidationError(msg string) error {
	return &PassError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
func WrapValidationError(err error, msg string) error {
	return &PassError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// WrapSigningError wraps a signing engine failure. The caller maps this to an
// opaque 5xx-class protocol failure.
func WrapSigningError(err error, msg string) error {
	return &PassError{code: ErrCodeSigning, message: msg, wrapped: err}
}

// WrapInternalError wraps an unexpected failure (serialization, archive
// assembly).
func WrapInternalError(err error, msg string) error {
	return &PassError{code: ErrCodeInternal, message: msg, wrapped: err}
}
