package crypto

import "fmt"

// Error represents a structured error from the crypto package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	ErrCodeValidation    ErrorCode = "validation"
	ErrCodeCertificate   ErrorCode = "certificate"
	ErrCodeKeyManagement ErrorCode = "key_management"
	ErrCodeSigning       ErrorCode = "signing"
	ErrCodeNotConfigured ErrorCode = "not_configured"
	ErrCodeInternal      ErrorCode = "internal"
)

// CryptoError represents a structured error from the crypto package
type CryptoError struct {

	// code is the crypto error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CryptoError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *CryptoError) Code() ErrorCode { return e.code }
func (e *CryptoError) Unwrap() error   { return e.wrapped }

// NewValidationError creates a validation error for invalid input.
// Use this for errors related to malformed PEM/base64 blobs, unexpected
// block types, or bad encoding.
//
// The returned error will have code ErrCodeValidation.
func NewValidationError(msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
//
// The returned error will have code ErrCodeValidation.
func WrapValidationError(err error, msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewCertificateError creates a certificate validation error.
// Use this for errors related to expired certificates, certificates that are
// not yet valid, or an authority certificate from the wrong issuer.
//
// The returned error will have code ErrCodeCertificate.
func NewCertificateError(msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg}
}

// WrapCertificateError wraps an existing error as a certificate error.
//
// The returned error will have code ErrCodeCertificate.
func WrapCertificateError(err error, msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewKeyManagementError creates a key management error.
// Use this for errors related to key parsing, unsupported key types, or a
// private key that does not match the signing certificate.
//
// The returned error will have code ErrCodeKeyManagement.
func NewKeyManagementError(msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg}
}

// WrapKeyManagementError wraps an existing error as a key management error.
//
// The returned error will have code ErrCodeKeyManagement.
func WrapKeyManagementError(err error, msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg, wrapped: err}
}

// NewSigningError creates a signing error.
// Use this when producing the detached signature fails. The caller maps this
// to a 5xx-class protocol failure; key material details never reach clients.
//
// The returned error will have code ErrCodeSigning.
func NewSigningError(msg string) error {
	return &CryptoError{code: ErrCodeSigning, message: msg}
}

// WrapSigningError wraps an existing error as a signing error.
//
// The returned error will have code ErrCodeSigning.
func WrapSigningError(err error, msg string) error {
	return &CryptoError{code: ErrCodeSigning, message: msg, wrapped: err}
}

// NewNotConfiguredError creates an error indicating that signing material is
// missing or unusable. This is a retryable availability condition, not a
// permanent failure: callers surface it as "not configured", never as a
// generic 500.
//
// The returned error will have code ErrCodeNotConfigured.
func NewNotConfiguredError(msg string) error {
	return &CryptoError{code: ErrCodeNotConfigured, message: msg}
}

// WrapNotConfiguredError wraps an existing error as a not-configured error.
//
// The returned error will have code ErrCodeNotConfigured.
func WrapNotConfiguredError(err error, msg string) error {
	return &CryptoError{code: ErrCodeNotConfigured, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
//
// The returned error will have code ErrCodeInternal.
func WrapInternalError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg, wrapped: err}
}
