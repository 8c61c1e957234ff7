package llm

import (
	"fmt"
	"net/http"
)

// APIError represents an error returned by the generative AI provider API.
type APIError struct {
	// Provider is the name of the provider ("gemini").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	// Zero means no HTTP response was received (network failure).
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error status classification from the API.
	Type string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error may succeed on retry: rate limiting
// (429), server errors (5xx), and network errors (StatusCode 0).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}
