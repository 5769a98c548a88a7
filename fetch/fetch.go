// Package fetch provides the shared rate-limited HTTP client used by every
// source adapter.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// StatusError indicates a non-OK HTTP response that should not be retried.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.URL)
}

// IsStatusError checks whether err carries a terminal HTTP status.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Client wraps http.Client with the survey's retry policy, the mandated
// inter-request delay, and browser-like headers.
type Client struct {
	http      *http.Client
	logger    *slog.Logger
	delay     time.Duration
	userAgent string
}

// New creates a fetch client. delay is slept before every request so source
// hosts see at most one request per delay interval from a run.
func New(timeout, delay time.Duration, userAgent string, logger *slog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		delay:     delay,
		userAgent: userAgent,
	}
}

// Get fetches url and returns the response body. Terminal statuses (403,
// 404) fail immediately; transient failures are retried.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", c.userAgent)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			start := time.Now()
			resp, err := c.http.Do(req)
			if err != nil {
				c.logger.Warn("HTTP request failed, will retry",
					"url", url,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("HTTP request completed",
				"url", url,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds())

			switch {
			case resp.StatusCode == http.StatusOK:
			case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
				return retry.Unrecoverable(&StatusError{URL: url, Code: resp.StatusCode})
			default:
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying fetch after error", "attempt", n, "url", url, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}

	return body, nil
}
