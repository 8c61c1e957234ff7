package sourceclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/observability"
)

// RetryPolicy controls how failed requests are retried. The same policy shape
// applies to every external call in the service.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// Delay returns the backoff delay before the given retry (0-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < retry; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// DefaultRetryPolicy returns the retry policy used when none is configured:
// three attempts with a one second base delay doubling between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Config configures the HTTP client.
type Config struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Retry governs retries on network errors, 429 and 5xx responses.
	Retry RetryPolicy

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Metrics receives per-attempt counters and durations, labeled by the
	// endpoint name derived from the request path. Optional.
	Metrics *observability.Metrics
}

// Client wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type Client struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      Config
}

// New creates a new HTTP client with rate limiting. The client waits on the
// rate limiter before each attempt and retries on network errors, 429
// (honoring Retry-After) and 5xx responses.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 3
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "AnesthubResearchDigest/1.0"
	}

	return &Client{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent.
//
// When retries are exhausted on 429 responses the returned error unwraps to
// domain.ErrRateLimited so callers can apply a longer backoff than for
// generic unavailability.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	var lastErr error
	lastStatus := 0
	endpoint := endpointLabel(req.URL)

	for attempt := 0; attempt < c.config.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.config.Retry.Delay(attempt - 1)
			if lastStatus == http.StatusTooManyRequests {
				// Rate-limit responses may carry their own delay.
				if ra := retryAfterDelay(lastErr); ra > delay {
					delay = ra
				}
			}
			if err := sleepCtx(req.Context(), delay); err != nil {
				return nil, err
			}
			if err := resetRequestBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}

		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		c.recordAttempt(endpoint, start, resp, err)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			lastStatus = 0
			continue
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		lastStatus = resp.StatusCode
		lastErr = &statusError{status: resp.StatusCode, retryAfter: parseRetryAfter(resp)}

		// Drain so the connection can be reused.
		if resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, domain.NewRateLimitError("pubmed", retryAfterDelay(lastErr))
	}
	if lastStatus > 0 {
		return nil, fmt.Errorf("max retries exhausted after %d attempts, last status: %d: %w",
			c.config.Retry.MaxAttempts, lastStatus, domain.ErrSourceUnavailable)
	}
	return nil, fmt.Errorf("max retries exhausted after %d attempts: %w", c.config.Retry.MaxAttempts, lastErr)
}

// recordAttempt updates the request metrics for one attempt.
func (c *Client) recordAttempt(endpoint string, start time.Time, resp *http.Response, err error) {
	m := c.config.Metrics
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		m.SourceRequestsFailed.WithLabelValues(endpoint, "network").Inc()
	case resp.StatusCode == http.StatusTooManyRequests:
		m.SourceRequestsFailed.WithLabelValues(endpoint, "rate_limited").Inc()
	case resp.StatusCode >= 500:
		m.SourceRequestsFailed.WithLabelValues(endpoint, "server_error").Inc()
	}
}

// endpointLabel derives a low-cardinality metric label from the request path
// (e.g. "/entrez/eutils/esearch.fcgi" becomes "esearch").
func endpointLabel(u *url.URL) string {
	name := strings.TrimSuffix(path.Base(u.Path), ".fcgi")
	if name == "." || name == "/" || name == "" {
		return "unknown"
	}
	return name
}

// statusError carries a retryable status code between attempts.
type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.status)
}

func retryAfterDelay(err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryAfter
	}
	return 0
}

// shouldRetry returns true for 429 and 5xx responses.
func shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// parseRetryAfter reads the Retry-After header as either seconds or an
// HTTP date. Returns zero when absent or unparseable.
func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// sleepCtx waits for the given duration, respecting context cancellation.
func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody restores the request body for retry if possible.
func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
