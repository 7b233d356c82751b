package store

import "fmt"

type ErrorCode string

const (
	ErrCodeNotFound ErrorCode = "not_found"
	ErrCodeConflict ErrorCode = "conflict"
	ErrCodeInternal ErrorCode = "internal"
)

// StoreError represents a structured error from the store package
type StoreError struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *StoreError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *StoreError) Code() ErrorCode { return e.code }
func (e *StoreError) Unwrap() error   { return e.wrapped }

// NewNotFoundError creates an error for a row that does not exist.
func NewNotFoundError(msg string) error {
	return &StoreError{code: ErrCodeNotFound, message: msg}
}

// NewConflictError creates an error for a uniqueness violation.
func NewConflictError(msg string) error {
	return &StoreError{code: ErrCodeConflict, message: msg}
}

// WrapInternalError wraps an unexpected database failure.
func WrapInternalError(err error, msg string) error {
	return &StoreError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// IsNotFound reports whether err carries the not-found code.
func IsNotFound(err error) bool {
	for err != nil {
		if se, ok := err.(*StoreError); ok {
			return se.code == ErrCodeNotFound
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
