package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
	"github.com/colthorp/teampulse-go/internal/metrics"
)

// APIError is returned when an upstream responds with an error status.
type APIError struct {
	Upstream   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Upstream, e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth retrying.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ErrCircuitOpen is returned without contacting the upstream while its breaker is open.
var ErrCircuitOpen = errors.New("upstream circuit open")

// AuthFunc decorates an outgoing request with credentials.
type AuthFunc func(*http.Request)

// BearerAuth sends "Authorization: Bearer <token>".
func BearerAuth(token string) AuthFunc {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// BasicAuth sends HTTP basic credentials.
func BasicAuth(user, token string) AuthFunc {
	return func(r *http.Request) {
		if token != "" {
			r.SetBasicAuth(user, token)
		}
	}
}

// Options configures a Client.
type Options struct {
	// Name labels logs and metrics ("github", "jira", "bonusly").
	Name    string
	BaseURL string
	Auth    AuthFunc
	Headers map[string]string

	Timeout    time.Duration
	MaxRetries int

	// RetryBackoff is the first retry wait; it doubles per attempt. Default 1s.
	RetryBackoff time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// PageDelay is the minimum spacing between pages of one paginated walk.
	PageDelay time.Duration

	HTTPClient *http.Client
}

// Client is the HTTP wrapper around one upstream REST API.
type Client struct {
	name       string
	baseURL    string
	auth       AuthFunc
	headers    map[string]string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	pageDelay  time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        zerolog.Logger
}

// NewClient creates a new API client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = core.DefaultRequestTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = core.DefaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = core.DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = core.DefaultBreakerTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Auth == nil {
		opts.Auth = func(*http.Request) {}
	}

	c := &Client{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		auth:       opts.Auth,
		headers:    opts.Headers,
		httpClient: opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		pageDelay:  opts.PageDelay,
		log:        logging.With(opts.Name),
	}

	failures := opts.BreakerFailures
	metrics.BreakerState.WithLabelValues(opts.Name).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Client errors are the caller's problem, not an unhealthy upstream.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && !apiErr.Retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return c
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Name returns the upstream label.
func (c *Client) Name() string {
	return c.name
}

// NewPager returns a limiter that spaces the pages of one paginated walk by the
// configured page delay. The first page is never delayed.
func (c *Client) NewPager() *rate.Limiter {
	if c.pageDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(c.pageDelay), 1)
}

// Do performs req through the circuit breaker, retrying on connection errors, HTTP 5xx
// and 429 with exponential back-off, and decodes the JSON body into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.UpstreamRequests.WithLabelValues(c.name, "rejected").Inc()
		return fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}
	if err != nil {
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s JSON response: %w", c.name, err)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, req Request) ([]byte, error) {
	urlStr := c.resolve(req)

	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	c.log.Debug().Str("method", method).Str("url", urlStr).Msg("Request")

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, wait, err := c.attempt(ctx, method, urlStr, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		retryable := !errors.As(err, &apiErr) || apiErr.Retryable()
		if ctx.Err() != nil || !retryable || attempt == c.maxRetries {
			return nil, err
		}

		if wait <= 0 {
			wait = c.backoff << (attempt - 1)
		}
		c.log.Debug().Int("attempt", attempt).Dur("wait", wait).Err(err).Msg("Retrying")
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// attempt performs one HTTP round trip. wait is a server-requested delay, if any.
func (c *Client) attempt(ctx context.Context, method, urlStr string, payload []byte) ([]byte, time.Duration, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	c.auth(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.UpstreamLatency.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(c.name, "error").Inc()
		return nil, 0, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		metrics.UpstreamRequests.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()
		apiErr := &APIError{Upstream: c.name, StatusCode: resp.StatusCode, Message: truncate(string(body), 512)}
		return nil, retryAfter(resp), apiErr
	}

	metrics.UpstreamRequests.WithLabelValues(c.name, "ok").Inc()
	c.log.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("Response")
	return body, 0, nil
}

func (c *Client) resolve(req Request) string {
	urlStr := req.Path
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		urlStr = c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	}
	if len(req.Query) > 0 {
		urlStr += "?" + req.Query.Encode()
	}
	return urlStr
}

func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
