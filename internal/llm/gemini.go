// Package llm provides the generative AI client used to enrich bibliographic
// records with clinical classifications, impact statements, summaries and
// keywords, and to produce per-paper deep critiques and weekly briefings.
//
// The client talks to the Gemini generateContent REST API directly over
// net/http. Batch enrichment uses a structured-output contract: the response
// is constrained to a declared JSON array schema so it can be parsed
// mechanically rather than scraped out of prose.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/observability"
)

const (
	// DefaultBaseURL is the Gemini API base URL.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is the model used for batch enrichment.
	DefaultModel = "gemini-3-flash-preview"

	// DefaultDeepModel is the model used for deep summaries and reports,
	// where quality matters more than latency.
	DefaultDeepModel = "gemini-3-pro-preview"

	// DefaultTimeout is the per-call HTTP timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of retries on transient errors.
	DefaultMaxRetries = 2

	// deepThinkingBudget is the thinking token budget for deep summaries.
	deepThinkingBudget = 4000

	// maxResponseBytes bounds how much of an API response is read.
	maxResponseBytes = 10 << 20
)

// GeminiConfig holds the parameters needed to create a Gemini client.
type GeminiConfig struct {
	// APIKey is the Gemini API key. Required.
	APIKey string
	// Model is the enrichment model identifier. Defaults to DefaultModel.
	Model string
	// DeepModel is the deep-summary model identifier.
	// Defaults to DefaultDeepModel.
	DeepModel string
	// BaseURL is the API base URL. Defaults to DefaultBaseURL.
	BaseURL string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is how many times transient errors are retried.
	// Zero selects DefaultMaxRetries; a negative value disables retries.
	MaxRetries int
	// Metrics receives per-request counters and durations. Optional.
	Metrics *observability.Metrics
}

// Gemini is a client for the Gemini generateContent API.
type Gemini struct {
	httpClient *http.Client
	apiKey     string
	model      string
	deepModel  string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	metrics    *observability.Metrics
}

// NewGemini creates a Gemini client. A missing API key is a configuration
// error surfaced here, before any network call is attempted.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewConfigurationError("gemini.api_key", "API key is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.DeepModel == "" {
		cfg.DeepModel = DefaultDeepModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &Gemini{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		deepModel:  cfg.DeepModel,
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
		metrics:    cfg.Metrics,
	}, nil
}

// Model returns the enrichment model identifier being used.
func (g *Gemini) Model() string {
	return g.model
}

// Wire types for the generateContent API.

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema         `json:"responseSchema,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// schema declares the structured-output contract for a response.
type schema struct {
	Type       string             `json:"type"`
	Items      *schema            `json:"items,omitempty"`
	Properties map[string]*schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content struct {
		Parts []part `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// generate sends one generateContent call for the given model and returns the
// first text part of the first candidate. Transient failures are retried with
// exponential backoff; context cancellation is respected between retries.
// op names the caller for metric labels.
func (g *Gemini) generate(ctx context.Context, op, model string, req generateRequest) (string, error) {
	var resp *generateResponse
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.retryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("gemini: context cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		resp, lastErr = g.sendRequest(ctx, model, req)
		g.record(op, model, start, lastErr)
		if lastErr == nil {
			break
		}
		if !isTransient(lastErr) {
			return "", lastErr
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("gemini: gave up after %d attempts: %w", g.maxRetries+1, lastErr)
	}

	return firstText(resp)
}

// record updates the request metrics for one attempt.
func (g *Gemini) record(op, model string, start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	g.metrics.LLMRequestsTotal.WithLabelValues(op, model).Inc()
	g.metrics.LLMRequestDuration.WithLabelValues(op, model).Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.LLMRequestsFailed.WithLabelValues(op, model, errorType(err)).Inc()
	}
}

// errorType collapses a request failure into a low-cardinality metric label.
func errorType(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type != "" {
			return apiErr.Type
		}
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	return "invalid_response"
}

// sendRequest sends a single request to the generateContent endpoint.
func (g *Gemini) sendRequest(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient and eligible for retry.
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Type:       "network_error",
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGeminiAPIError(httpResp.StatusCode, respBody)
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("gemini: failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// firstText returns the first non-empty text part of the first candidate.
func firstText(resp *generateResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errEmptyResponse
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", errEmptyResponse
}

// errEmptyResponse marks a response with no usable text content.
var errEmptyResponse = errors.New("gemini: response contains no text content")

// parseGeminiAPIError builds an APIError from a non-200 response body.
func parseGeminiAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "gemini",
		StatusCode: statusCode,
		Message:    "unknown error",
	}

	var parsed geminiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Status
	}
	return apiErr
}

// isTransient reports whether the error may succeed on retry.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}
