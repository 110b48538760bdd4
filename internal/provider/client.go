package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 8 * time.Second
	defaultRetryAttempts  = 3
	maxResponseBytes      = 64 << 20
)

// APIConfig captures what is needed to talk to one provider API.
type APIConfig struct {
	BaseURL string
	Token   string
}

// apiClient is a small JSON-over-HTTP client with retry on transient
// failures (timeouts, 408, 429, 5xx).
type apiClient struct {
	cfg        APIConfig
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(context.Context, time.Duration) error
	now              func() time.Time
}

// Option customizes provider clients.
type Option func(*apiClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *apiClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *apiClient) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *apiClient) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry and poll sleeps are performed.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *apiClient) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithClock overrides time.Now for poll deadlines.
func WithClock(now func() time.Time) Option {
	return func(c *apiClient) {
		if now != nil {
			c.now = now
		}
	}
}

func newAPIClient(cfg APIConfig, opts ...Option) *apiClient {
	c := &apiClient{
		cfg: APIConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:   strings.TrimSpace(cfg.Token),
		},
		httpClient:       &http.Client{Timeout: defaultHTTPTimeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		sleeper:          sleepContext,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *apiClient) configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.Token != ""
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// doJSON sends body as JSON and decodes the response into out (if non-nil).
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, _, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends the request with retries and returns the raw body and content type.
func (c *apiClient) do(ctx context.Context, method, path string, body any) ([]byte, string, error) {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return nil, "", fmt.Errorf("encode request: %w", err)
		}
	}

	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, ct, err := c.once(ctx, method, path, encoded)
		if err == nil {
			return raw, ct, nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return nil, "", err
		}
		if err := c.sleeper(ctx, delay); err != nil {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (c *apiClient) once(ctx context.Context, method, path string, encoded []byte) ([]byte, string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, "", fmt.Errorf("build url: %w", err)
	}
	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: retryAfter,
		}
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *apiClient) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> 2*base.
func (c *apiClient) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *apiClient) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classify maps a transport error to the outcome sentinel it represents.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrValidation) {
		return err
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusTooManyRequests ||
		statusErr.StatusCode >= http.StatusInternalServerError) {
		return fmt.Errorf("%w: %w: %v", ErrProvider, ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}
