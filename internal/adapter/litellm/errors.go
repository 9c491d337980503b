package litellm

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the category of error returned by the admin API.
type ErrorType int

const (
	ErrTypeAuthentication ErrorType = iota
	ErrTypeRateLimit
	ErrTypeInvalidRequest
	ErrTypeNotFound
	ErrTypeServer
	ErrTypeNetwork
	ErrTypeUnknown
)

// String returns a human-readable description of the error type.
func (e ErrorType) String() string {
	switch e {
	case ErrTypeAuthentication:
		return "authentication error"
	case ErrTypeRateLimit:
		return "rate limit exceeded"
	case ErrTypeInvalidRequest:
		return "invalid request"
	case ErrTypeNotFound:
		return "not found"
	case ErrTypeServer:
		return "server error"
	case ErrTypeNetwork:
		return "network error"
	default:
		return "unknown error"
	}
}

// Error represents an admin API error with status and body context.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Endpoint   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Endpoint, e.Type.String(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s (status: %d)", e.Endpoint, e.Type.String(), e.Message, e.StatusCode)
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// mapHTTPError maps admin API HTTP status codes to a typed *Error. The body
// is included so operators can see the structured error the gateway returned.
func mapHTTPError(endpoint string, statusCode int, body []byte) *Error {
	message := parseErrorMessage(statusCode, body)

	var errType ErrorType
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		errType = ErrTypeAuthentication
	case statusCode == http.StatusTooManyRequests:
		errType = ErrTypeRateLimit
	case statusCode == http.StatusNotFound:
		errType = ErrTypeNotFound
	case statusCode >= 500:
		errType = ErrTypeServer
	case statusCode >= 400:
		errType = ErrTypeInvalidRequest
	default:
		errType = ErrTypeUnknown
	}

	return &Error{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Endpoint:   endpoint,
	}
}

// parseErrorMessage extracts the error detail from a structured error body,
// falling back to the raw body when the shape is unfamiliar.
func parseErrorMessage(statusCode int, body []byte) string {
	if len(body) == 0 {
		return fmt.Sprintf("HTTP %d", statusCode)
	}
	for _, path := range []string{"error.message", "detail.error", "detail", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return string(body)
}
