// Package dto defines API request/response types and error handling.
//
// This package is the API contract layer: request types carry path/query/json
// struct tags for parameter binding, response types use string IDs and
// human-formatted storage figures, and errors follow a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (NotFound, Forbidden, etc.) create common errors
//
// It has no dependency on the storage packages; conversion between domain
// entities and dto types is handled by the handlers package.
package dto

import (
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden is returned when the caller is neither the owner
	// nor allowed by the node's visibility.
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"

	// ErrorCodeQuotaExceeded is returned when an upload would push the
	// user's storage usage past their limit.
	ErrorCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// ErrorCodeUnsupportedType is returned for a disallowed MIME type.
	ErrorCodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
	// ErrorCodePayloadTooLarge is returned when a request body exceeds limits.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// ErrorCodeUpstream is returned when the Blob Store or Document Service fails.
	ErrorCodeUpstream ErrorCode = "UPSTREAM_ERROR"
	// ErrorCodeOAuthError is returned when an OAuth operation fails.
	ErrorCodeOAuthError ErrorCode = "OAUTH_ERROR"

	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeRateLimited is returned when a rate limit is exceeded.
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "Missing required field: "+fieldName)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeForbidden, message)
}

// QuotaExceeded creates a 400 error carrying the figures the client needs to
// explain the rejection.
func QuotaExceeded(requested, limit, available int64) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeQuotaExceeded, "Storage quota exceeded").
		WithDetails(map[string]any{
			"requested_bytes": requested,
			"limit_bytes":     limit,
			"available_bytes": available,
		})
}

// PayloadTooLarge creates a 413 error for oversized request bodies.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "Request body too large").
		WithDetail("limit_bytes", limit)
}

// Upstream creates a 500 error for Blob Store or Document Service failures.
func Upstream(service string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeUpstream, service+" request failed").Wrap(err)
}

// OAuthError creates a 500 error for OAuth operation failures.
func OAuthError(operation string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeOAuthError, operation)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// RateLimitExceeded creates a 429 error with the retry delay in seconds.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimited, "Rate limit exceeded").
		WithDetail("retry_after", retryAfter)
}
