// Package oracle is the HTTP client for the external collection
// optimization oracle. All calls ride encrypted transport with a bearer
// credential and retry transparently on transient failures.
package oracle

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// APIVersion is the oracle API version spoken by this client.
const APIVersion = "v1"

const (
	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the total number of attempts per call.
	DefaultMaxRetries = 3
	// DefaultRetryBase is the initial backoff interval between attempts.
	DefaultRetryBase = time.Second

	minAPIKeyLength = 32
	userAgent       = "collection-planner/1.0"
)

// ConfigError reports invalid or missing oracle configuration. It is
// raised eagerly at startup; an invalid configuration is fatal.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "oracle config: " + e.Msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// RateLimit carries the oracle-side rate limit parameters the client is
// expected to stay within.
type RateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config holds connection settings for the oracle API.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryBase  time.Duration `yaml:"retry_base"`
	RateLimit  RateLimit     `yaml:"rate_limit"`
}

// LoadConfig reads a YAML config file, applies ORACLE_BASE_URL and
// ORACLE_API_KEY environment overrides plus defaults, and validates the
// result. An empty path loads from the environment alone.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, configErrorf("read %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, configErrorf("parse %s: %v", path, err)
		}
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
}

// Validate enforces the connection invariants: HTTPS transport, a
// well-formed API key, and sane timing parameters.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return configErrorf("invalid base URL: %v", err)
	}
	if u.Scheme != "https" {
		return configErrorf("base URL must use HTTPS")
	}
	if u.Host == "" {
		return configErrorf("base URL missing host")
	}
	if len(c.APIKey) < minAPIKeyLength || !isAlphanumeric(c.APIKey) {
		return configErrorf("API key must be at least %d alphanumeric characters", minAPIKeyLength)
	}
	if c.Timeout < time.Second {
		return configErrorf("timeout %v below 1s minimum", c.Timeout)
	}
	if c.MaxRetries < 1 {
		return configErrorf("max retries must be at least 1")
	}
	return nil
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
