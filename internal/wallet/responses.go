package wallet

// responses.go provides helper functions for sending HTTP responses from the
// wallet and collaborator API handlers, and the mapping from package errors
// to client-facing error responses.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/logger"
	"github.com/stampwise/passd/internal/loyalty"
	"github.com/stampwise/passd/internal/pass"
	"github.com/stampwise/passd/internal/store"
)

// ErrorResponse is the JSON error body returned by the collaborator API.
// The wallet protocol endpoints under /v1 respond with bare status codes
// instead, as the wallet client ignores error bodies.
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// The machine-readable error code
	ErrorCode ErrorCode `json:"errorCode"`

	// A sanitized human-readable message
	Message string `json:"message"`

	// A unique identifier for the HTTP request
	RequestID string `json:"requestId,omitempty"`

	// The DateTime corresponding to the error occurring
	ErrorDateTime string `json:"errorDateTime"`
}

// MapErrorToResponse maps wallet, loyalty, crypto, pass and store errors to
// a client-facing error response.
//
// The message is sanitized for the response; the full error is logged
// server-side by RespondWithError. The mapping also establishes the HTTP
// status code based on the error type.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	var walletErr *WalletError
	if errors.As(err, &walletErr) {
		return errorResponseFromWallet(walletErr, r, requestID)
	}

	var cryptoErr *crypto.CryptoError
	if errors.As(err, &cryptoErr) {
		return errorResponseFromCrypto(cryptoErr, r, requestID)
	}

	var loyaltyErr *loyalty.LoyaltyError
	if errors.As(err, &loyaltyErr) {
		return errorResponseFromLoyalty(loyaltyErr, r, requestID)
	}

	var passErr *pass.PassError
	if errors.As(err, &passErr) {
		return errorResponseFromPass(passErr, r, requestID)
	}

	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errorResponseFromStore(storeErr, r, requestID)
	}

	// fallback - this is not expected: log the unmapped error type
	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Error("BUG: Unmapped error type in MapErrorToResponse",
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred")
}

func errorResponseFromWallet(err *WalletError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var message string

	switch err.Code() {
	case ErrCodeUnauthorized:
		statusCode = http.StatusUnauthorized
		message = "Invalid or missing authentication token"
	case ErrCodeNotFound:
		statusCode = http.StatusNotFound
		message = "Not found"
	case ErrCodeMalformedRequest:
		statusCode = http.StatusBadRequest
		message = "Malformed request"
	case ErrCodeRateLimitExceeded:
		statusCode = http.StatusTooManyRequests
		message = "Rate limit exceeded"
	case ErrCodeRequestTooLarge:
		statusCode = http.StatusRequestEntityTooLarge
		message = "Request too large"
	case ErrCodeNotConfigured:
		statusCode = http.StatusServiceUnavailable
		message = "Service not configured"
	default:
		statusCode = http.StatusInternalServerError
		message = "An internal error occurred"
	}

	return newErrorResponse(r, requestID, statusCode, err.Code(), message)
}

func errorResponseFromCrypto(err *crypto.CryptoError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var errorCode ErrorCode
	var message string

	switch err.Code() {
	case crypto.ErrCodeNotConfigured:
		statusCode = http.StatusServiceUnavailable
		errorCode = ErrCodeNotConfigured
		message = "Pass signing is not configured"
	case crypto.ErrCodeValidation:
		statusCode = http.StatusBadRequest
		errorCode = ErrCodeMalformedRequest
		message = "Malformed request"
	default:
		// signing, certificate and key management failures are server-side
		// conditions; details never reach the client
		statusCode = http.StatusInternalServerError
		errorCode = ErrCodeInternalError
		message = "An internal error occurred"
	}

	return newErrorResponse(r, requestID, statusCode, errorCode, message)
}

func errorResponseFromLoyalty(err *loyalty.LoyaltyError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var errorCode ErrorCode
	var message string

	switch err.Code() {
	case loyalty.ErrCodeNotFound:
		statusCode = http.StatusNotFound
		errorCode = ErrCodeNotFound
		message = "Pass not found"
	case loyalty.ErrCodeValidation:
		statusCode = http.StatusBadRequest
		errorCode = ErrCodeMalformedRequest
		message = err.Error()
	case loyalty.ErrCodeInactive:
		statusCode = http.StatusConflict
		errorCode = ErrCodeMalformedRequest
		message = "Pass is deactivated"
	default:
		statusCode = http.StatusInternalServerError
		errorCode = ErrCodeInternalError
		message = "An internal error occurred"
	}

	return newErrorResponse(r, requestID, statusCode, errorCode, message)
}

func errorResponseFromPass(err *pass.PassError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var errorCode ErrorCode
	var message string

	switch err.Code() {
	case pass.ErrCodeValidation:
		statusCode = http.StatusBadRequest
		errorCode = ErrCodeMalformedRequest
		message = "Malformed request"
	default:
		// signing and archive assembly failures are server-side conditions
		statusCode = http.StatusInternalServerError
		errorCode = ErrCodeInternalError
		message = "An internal error occurred"
	}

	return newErrorResponse(r, requestID, statusCode, errorCode, message)
}

func errorResponseFromStore(err *store.StoreError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var errorCode ErrorCode
	var message string

	switch err.Code() {
	case store.ErrCodeNotFound:
		statusCode = http.StatusNotFound
		errorCode = ErrCodeNotFound
		message = "Not found"
	case store.ErrCodeConflict:
		statusCode = http.StatusConflict
		errorCode = ErrCodeMalformedRequest
		message = "Resource already exists"
	default:
		statusCode = http.StatusInternalServerError
		errorCode = ErrCodeInternalError
		message = "An internal error occurred"
	}

	return newErrorResponse(r, requestID, statusCode, errorCode, message)
}

func newErrorResponse(r *http.Request, requestID string, statusCode int, errorCode ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		HTTPMethod:     r.Method,
		RequestURI:     r.RequestURI,
		StatusCode:     statusCode,
		StatusCodeText: http.StatusText(statusCode),
		ErrorCode:      errorCode,
		Message:        message,
		RequestID:      requestID,
		ErrorDateTime:  time.Now().UTC().Format(time.RFC3339),
	}
}

// RespondWithError sends a JSON error response.
//
// It logs the full error details server-side and sends a sanitized response
// to the client.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse := MapErrorToResponse(err, r)

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Warn("Request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", errorResponse.StatusCode),
		slog.String("error_code", string(errorResponse.ErrorCode)),
		slog.String("request_id", errorResponse.RequestID),
	)

	RespondWithJSONPayload(w, errorResponse.StatusCode, errorResponse)
}

// RespondWithProtocolError sends a bare status code for the wallet protocol
// endpoints; the wallet client only reads the status code. The full error is
// logged server-side.
func RespondWithProtocolError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse := MapErrorToResponse(err, r)

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Warn("Wallet protocol request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", errorResponse.StatusCode),
		slog.String("request_id", errorResponse.RequestID),
	)

	RespondWithStatusCodeOnly(w, errorResponse.StatusCode)
}

// RespondWithJSONPayload sends a JSON response with the given status code
func RespondWithJSONPayload(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// headers are already written, just log it
			slog.Error("Failed to encode JSON response",
				slog.String("error", err.Error()),
			)
		}
	}
}

// RespondWithStatusCodeOnly sends a response with only a status code (no body)
func RespondWithStatusCodeOnly(w http.ResponseWriter, statusCode int) {
	w.WriteHeader(statusCode)
}
