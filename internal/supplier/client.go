package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"supplier-catalog-service/internal/retry"
)

const maxBodyBytes = 64 << 20

// ErrUnexpectedStatus is matched by every StatusError.
var ErrUnexpectedStatus = errors.New("supplier: unexpected status")

// StatusError is returned when a feed answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supplier: unexpected status %d from %s", e.Code, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ClientOptions configures the HTTP client shared by an adapter's calls.
type ClientOptions struct {
	Timeout     time.Duration
	Headers     map[string]string
	MaxAttempts int
	Backoff     retry.Backoff
	Limiter     *rate.Limiter
	HTTPClient  *http.Client
}

// client performs the GET requests of one supplier with retries and an
// optional outbound rate limit.
type client struct {
	http    *http.Client
	headers map[string]string
	retry   retry.Config
	limiter *rate.Limiter
	log     *slog.Logger
}

func newClient(opts ClientOptions, logger *slog.Logger) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &client{
		http:    hc,
		headers: opts.Headers,
		limiter: opts.Limiter,
		log:     logger,
		retry: retry.Config{
			MaxAttempts: opts.MaxAttempts,
			Backoff:     opts.Backoff,
			ShouldRetry: shouldRetry,
		},
	}
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// get fetches url and returns the raw body.
func (c *client) get(ctx context.Context, url string) ([]byte, error) {
	return retry.DoWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.getOnce(ctx, url)
	})
}

func (c *client) getOnce(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("supplier: rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("supplier: failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("supplier: request was cancelled: %w", ctx.Err())
		default:
			return nil, fmt.Errorf("supplier: failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("supplier: failed to read response body: %w", err)
	}
	c.log.Debug("feed request done",
		slog.String("url", url),
		slog.Int("bytes", len(body)),
		slog.Duration("took", time.Since(start)))
	return body, nil
}

// getJSON fetches url and decodes the JSON body into out.
func (c *client) getJSON(ctx context.Context, url string, out interface{}) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("supplier: failed to unmarshal response from %s: %w", url, err)
	}
	return nil
}
