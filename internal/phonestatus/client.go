// Package phonestatus is the REST client for the phone system's status API.
// It reports per-extension registration and line state, which the gateway's
// availability tool uses to decide whether a caller can be transferred to a
// technician.
package phonestatus

import (
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

// UserStatus is the presence state reported per extension.
type UserStatus string

const (
	StatusAvailable    UserStatus = "Available"
	StatusAway         UserStatus = "Away"
	StatusDoNotDisturb UserStatus = "DoNotDisturb"
	StatusOutOfOffice  UserStatus = "OutOfOffice"
)

// PhoneStatus is one extension's state.
type PhoneStatus struct {
	Extension  string     `json:"extension"`
	Registered bool       `json:"registered"`
	OnCall     bool       `json:"onCall"`
	UserStatus UserStatus `json:"userStatus"`
	Name       string     `json:"name,omitempty"`
}

// AvailableForTransfer reports whether a caller can be handed to this
// extension right now: the phone must be registered, idle, and its user
// marked available.
func (s PhoneStatus) AvailableForTransfer() bool {
	return s.Registered && !s.OnCall && s.UserStatus == StatusAvailable
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	// Spacing is the minimum interval between status API calls.
	Spacing time.Duration
}

// Client talks to the phone system's status API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	lg      zerolog.Logger
}

// New creates a phone-status client.
func New(cfg Config) *Client {
	spacing := cfg.Spacing
	if spacing <= 0 {
		spacing = 500 * time.Millisecond
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		lg:      logging.Component("phonestatus"),
	}
}

// GetPhoneStatuses fetches the status of every extension.
func (c *Client) GetPhoneStatuses(ctx context.Context) ([]PhoneStatus, error) {
	var statuses []PhoneStatus

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/statuses", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			err := fmt.Errorf("phone status API status %d: %s", resp.StatusCode, raw)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		statuses = statuses[:0]
		return json.NewDecoder(resp.Body).Decode(&statuses)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)); err != nil {
		c.lg.Error().Err(err).Msg("phone status call failed")
		return nil, fmt.Errorf("phone status getPhoneStatuses: %w", err)
	}
	return statuses, nil
}

// FindExtension returns the status for one extension, if present.
func FindExtension(statuses []PhoneStatus, extension string) (PhoneStatus, bool) {
	for _, s := range statuses {
		if s.Extension == extension {
			return s, true
		}
	}
	return PhoneStatus{}, false
}
