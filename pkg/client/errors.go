package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidEndpoint is returned for endpoint strings that neither
	// start with a slash nor live on the configured API base URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrUnsupportedMethod is returned for HTTP methods outside
	// GET/POST/PUT/DELETE.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
)

// APIError carries the context of a failed API call: status code, endpoint
// and how many attempts were made before giving up.
type APIError struct {
	StatusCode int
	Endpoint   string
	Attempts   int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("ADP API error (status %d) on %s after %d attempt(s): %s",
		e.StatusCode, e.Endpoint, e.Attempts, e.Message)
}

// retryableStatus reports whether a status code is a transient error.
// Exactly {429, 500, 502, 503, 504}; every other status, including all
// other 4xx, surfaces immediately without retry.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
