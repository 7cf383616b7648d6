// Package autotask is the REST client for the downstream ticketing system.
//
// Every call is rate limited with a minimum inter-call spacing and retried
// with exponential backoff on transient failures, so a burst of tool calls
// from many concurrent sessions cannot hammer the vendor API.
package autotask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/voicedesk-ai/voicedesk/internal/logging"
)

const (
	// MaxRetries is the maximum number of retries for transient API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = 500 * time.Millisecond
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 10 * time.Second
)

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Username string
	Secret   string
	APIKey   string
	// Spacing is the minimum interval between calls to the vendor API.
	Spacing time.Duration
}

// Client talks to the ticketing system's REST API.
type Client struct {
	baseURL string
	headers map[string]string
	http    *http.Client
	limiter *rate.Limiter
	lg      zerolog.Logger
}

// New creates a ticketing client.
func New(cfg Config) *Client {
	spacing := cfg.Spacing
	if spacing <= 0 {
		spacing = 500 * time.Millisecond
	}
	return &Client{
		baseURL: cfg.BaseURL,
		headers: map[string]string{
			"UserName": cfg.Username,
			"Secret":   cfg.Secret,
			"ApiIntegrationCode": cfg.APIKey,
		},
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		lg:      logging.Component("autotask"),
	}
}

// apiError is a non-2xx response from the vendor API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("ticketing API status %d: %s", e.Status, e.Body)
}

// retryable reports whether a failed attempt is worth repeating.
// Rate-limit and server-side failures are; other HTTP errors are not.
func retryable(err error) bool {
	if apiErr, ok := err.(*apiError); ok {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	// Transport-level failures (connection reset, timeout).
	return true
}

// newRetryBackoff creates the exponential backoff with jitter used for API
// retries, bounded by the caller's context.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// do performs one rate-limited, retried API call and decodes the response
// into out (which may be nil).
func (c *Client) do(ctx context.Context, call, method, path string, body, out any) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", call, err)
		}
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			apiErr := &apiError{Status: resp.StatusCode, Body: string(raw)}
			if retryable(apiErr) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	start := time.Now()
	err := backoff.Retry(operation, newRetryBackoff(ctx))
	if err != nil {
		c.lg.Error().Err(err).Str("call", call).Msg("ticketing call failed")
		return fmt.Errorf("ticketing %s: %w", call, err)
	}
	c.lg.Debug().Str("call", call).Dur("took", time.Since(start)).Msg("ticketing call")
	return nil
}
