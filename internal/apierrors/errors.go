package apierrors

import (
	"fmt"
	"net/http"
)

// Error codes returned to API clients.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidPhoneNumber = "INVALID_PHONE_NUMBER"
	CodeTelephonyError     = "TELEPHONY_PROVIDER_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// APIError is an error with the HTTP status and client-safe message it maps
// to. The wrapped error is logged, never sent.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func BadRequest(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: code, Message: message}
}

func NotFound(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusNotFound, Code: code, Message: message}
}

// ServiceUnavailable wraps an upstream failure.
func ServiceUnavailable(code, message string, err error) *APIError {
	return &APIError{StatusCode: http.StatusServiceUnavailable, Code: code, Message: message, Err: err}
}

// InternalError sanitizes an unknown failure into a generic 500.
func InternalError(err error) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "An internal error occurred. Please try again later.",
		Err:        err,
	}
}
