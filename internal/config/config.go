// Package config loads gateway configuration from an optional JSONC file
// and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// Duration is a time.Duration that unmarshals from JSON strings like "15m".
type Duration time.Duration

// UnmarshalJSON accepts either a duration string ("15m", "60s") or a
// number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TicketingConfig holds the downstream ticketing system credentials.
type TicketingConfig struct {
	BaseURL  string   `json:"baseUrl"`
	Username string   `json:"username"`
	Secret   string   `json:"secret"`
	APIKey   string   `json:"apiKey"`
	Spacing  Duration `json:"spacing"` // minimum inter-call spacing
}

// PhoneStatusConfig holds the phone system status API credentials.
type PhoneStatusConfig struct {
	BaseURL string   `json:"baseUrl"`
	APIKey  string   `json:"apiKey"`
	Spacing Duration `json:"spacing"`
}

// Config is the gateway configuration.
type Config struct {
	Port           int      `json:"port"`
	LogLevel       string   `json:"logLevel"`
	LogPretty      bool     `json:"logPretty"`
	MaxSessions    int      `json:"maxSessions"`
	SessionTTL     Duration `json:"sessionTtl"`
	SweepInterval  Duration `json:"sweepInterval"`
	EventRetention int      `json:"eventRetention"`

	// AllowedOrigins restricts callers by network origin. Empty means no
	// origin restriction.
	AllowedOrigins []string `json:"allowedOrigins"`

	// SharedSecret gates every RPC request when set. Empty disables the
	// credential check (an explicit opt-out, logged at startup).
	SharedSecret string `json:"sharedSecret"`

	TenantsFile string `json:"tenantsFile"`

	Ticketing   TicketingConfig   `json:"ticketing"`
	PhoneStatus PhoneStatusConfig `json:"phoneStatus"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Port:           8090,
		LogLevel:       "INFO",
		MaxSessions:    100,
		SessionTTL:     Duration(15 * time.Minute),
		SweepInterval:  Duration(60 * time.Second),
		EventRetention: 100,
		TenantsFile:    "tenants.yaml",
		Ticketing:      TicketingConfig{Spacing: Duration(500 * time.Millisecond)},
		PhoneStatus:    PhoneStatusConfig{Spacing: Duration(500 * time.Millisecond)},
	}
}

// Load builds the configuration (priority order):
//  1. built-in defaults
//  2. JSONC config file: the given path, or $VOICEDESK_CONFIG
//  3. environment variables (highest priority)
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOICEDESK_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a JSONC config file into cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variables on top of the loaded
// configuration.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.LogLevel, "VOICEDESK_LOG_LEVEL")
	setBool(&cfg.LogPretty, "VOICEDESK_LOG_PRETTY")
	setInt(&cfg.Port, "VOICEDESK_PORT")
	setInt(&cfg.MaxSessions, "VOICEDESK_MAX_SESSIONS")
	setDuration(&cfg.SessionTTL, "VOICEDESK_SESSION_TTL")
	setDuration(&cfg.SweepInterval, "VOICEDESK_SWEEP_INTERVAL")
	setInt(&cfg.EventRetention, "VOICEDESK_EVENT_RETENTION")
	setString(&cfg.SharedSecret, "VOICEDESK_SHARED_SECRET")
	setString(&cfg.TenantsFile, "VOICEDESK_TENANTS_FILE")

	if v := os.Getenv("VOICEDESK_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowedOrigins = origins
	}

	setString(&cfg.Ticketing.BaseURL, "TICKETING_BASE_URL")
	setString(&cfg.Ticketing.Username, "TICKETING_USERNAME")
	setString(&cfg.Ticketing.Secret, "TICKETING_SECRET")
	setString(&cfg.Ticketing.APIKey, "TICKETING_API_KEY")
	setDuration(&cfg.Ticketing.Spacing, "TICKETING_CALL_SPACING")

	setString(&cfg.PhoneStatus.BaseURL, "PHONE_STATUS_BASE_URL")
	setString(&cfg.PhoneStatus.APIKey, "PHONE_STATUS_API_KEY")
	setDuration(&cfg.PhoneStatus.Spacing, "PHONE_STATUS_CALL_SPACING")
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("maxSessions must be positive, got %d", c.MaxSessions)
	}
	if c.EventRetention <= 0 {
		return fmt.Errorf("eventRetention must be positive, got %d", c.EventRetention)
	}
	if c.SessionTTL.Std() <= 0 {
		return fmt.Errorf("sessionTtl must be positive")
	}
	if c.SweepInterval.Std() <= 0 {
		return fmt.Errorf("sweepInterval must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
