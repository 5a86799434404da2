package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/dashboard-notifications/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/dashboard-notifications/pkg/errors"
)

const (
	maxBackoff = 30 * time.Second

	// DefaultMaxBodyBytes caps a response body when Config.MaxBodyBytes
	// is unset.
	DefaultMaxBodyBytes = 4 << 20
)

// Config controls the upstream client.
type Config struct {
	BaseURL           string
	NotificationsPath string
	AlertsPath        string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
	// BreakerFailures consecutive failures open an endpoint's breaker.
	BreakerFailures int
	BreakerTimeout  time.Duration
	// MaxBodyBytes bounds how much of a response body is read.
	MaxBodyBytes int64
}

// Client is a thin HTTP client for the dashboard REST API. It handles
// bearer authentication, JSON decoding, retry with backoff on HTTP 429,
// client-side rate limiting and one circuit breaker per path.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	cfg        Config

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.NotificationsPath == "" {
		cfg.NotificationsPath = DefaultNotificationsPath
	}
	if cfg.AlertsPath == "" {
		cfg.AlertsPath = DefaultAlertsPath
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(limit, burst),
		cfg:        cfg,
		breakers:   make(map[string]*circuitbreaker.CircuitBreaker),
		sleep:      sleepCtx,
	}
}

// Get performs an authenticated GET on path and decodes the JSON body
// into result.
func (c *Client) Get(ctx context.Context, path, token string, result interface{}) error {
	if token == "" {
		return apperrors.Unauthorized(fmt.Errorf("no credential for GET %s", path))
	}
	return c.breaker(path).Execute(func() error {
		return c.do(ctx, http.MethodGet, path, token, result)
	})
}

// breaker returns the breaker guarding path. Authorization failures do not
// count against it; they are not an outage.
func (c *Client) breaker(path string) *circuitbreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[path]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "dashboard-api" + path,
			MaxFailures: c.cfg.BreakerFailures,
			Timeout:     c.cfg.BreakerTimeout,
			IsSuccessful: func(err error) bool {
				return err == nil ||
					apperrors.Is(err, apperrors.ErrUnauthorized) ||
					apperrors.Is(err, apperrors.ErrForbidden) ||
					ctxErr(err)
			},
		})
		c.breakers[path] = cb
	}
	return cb
}

func (c *Client) do(ctx context.Context, method, path, token string, result interface{}) error {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}
		if int64(len(body)) > c.cfg.MaxBodyBytes {
			return apperrors.BadGateway(fmt.Errorf("response from %s %s exceeds %d bytes", method, path, c.cfg.MaxBodyBytes))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = apperrors.Upstream(resp.StatusCode, fmt.Errorf("rate limited on %s %s", method, path))
			if attempt == c.maxRetries {
				continue
			}
			if err := c.sleep(ctx, retryAfterDuration(resp, attempt)); err != nil {
				return err
			}
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			return apperrors.Unauthorized(fmt.Errorf("%s %s rejected the credential", method, path))
		case resp.StatusCode == http.StatusForbidden:
			return apperrors.Forbidden(fmt.Errorf("%s %s", method, path))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return apperrors.Upstream(resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, truncate(body, 256)))
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return apperrors.BadGateway(fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err))
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and falls back to
// exponential backoff: 1s, 2s, 4s, ... capped at maxBackoff.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
