package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the conditions the service distinguishes. Callers test
// for them with errors.Is; the structured types below carry the detail.
var (
	// ErrMissingCredentials indicates that a required API credential is not
	// configured. Surfaced before any network call is attempted.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrSourceUnavailable indicates that the bibliographic index could not be
	// reached or returned a non-2xx response after retries were exhausted.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited indicates that an external API rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrEnrichmentUnavailable indicates that the AI enrichment service was
	// unreachable or returned output that could not be used.
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

	// ErrRefreshInProgress indicates that a refresh for the same cache key is
	// already running. Retryable: callers should try again shortly.
	ErrRefreshInProgress = errors.New("refresh in progress")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// ConfigurationError describes a missing or invalid configuration value.
// Distinct from runtime failures so operators can tell "misconfigured"
// apart from "degraded or down".
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConfigurationError) Unwrap() error {
	return ErrMissingCredentials
}

// SourceError describes a failed call to the bibliographic index.
type SourceError struct {
	Endpoint   string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("pubmed %s failed (status %d): %v", e.Endpoint, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("pubmed %s failed: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *SourceError) Unwrap() error {
	return ErrSourceUnavailable
}

// RateLimitError describes a rate-limit response from an external API.
// Distinguishable from generic unavailability so callers can apply a
// longer backoff.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.Source)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// EnrichmentError describes a failed AI enrichment call. Stage records where
// the call broke down ("request", "empty_response", "parse") so connectivity
// problems are distinguishable from malformed output.
type EnrichmentError struct {
	Stage string
	Cause error
}

// Error implements the error interface.
func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *EnrichmentError) Unwrap() error {
	return ErrEnrichmentUnavailable
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewSourceError creates a new SourceError.
func NewSourceError(endpoint string, statusCode int, cause error) *SourceError {
	return &SourceError{Endpoint: endpoint, StatusCode: statusCode, Cause: cause}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

// NewEnrichmentError creates a new EnrichmentError.
func NewEnrichmentError(stage string, cause error) *EnrichmentError {
	return &EnrichmentError{Stage: stage, Cause: cause}
}
