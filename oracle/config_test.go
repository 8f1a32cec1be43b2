package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		BaseURL: "https://oracle.example.com",
		APIKey:  strings.Repeat("a", 32),
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "http scheme rejected",
			mutate:  func(c *Config) { c.BaseURL = "http://oracle.example.com" },
			wantErr: "HTTPS",
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.BaseURL = "https://" },
			wantErr: "host",
		},
		{
			name:    "short api key",
			mutate:  func(c *Config) { c.APIKey = "tooshort" },
			wantErr: "API key",
		},
		{
			name:    "non-alphanumeric api key",
			mutate:  func(c *Config) { c.APIKey = strings.Repeat("a", 31) + "!" },
			wantErr: "API key",
		},
		{
			name:    "sub-second timeout",
			mutate:  func(c *Config) { c.Timeout = 100 * time.Millisecond },
			wantErr: "timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.applyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.applyDefaults()
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryBase, cfg.RetryBase)
	assert.Equal(t, 10, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ORACLE_BASE_URL", "https://oracle.internal.example.com")
	t.Setenv("ORACLE_API_KEY", strings.Repeat("k", 40))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://oracle.internal.example.com", cfg.BaseURL)
	assert.Equal(t, strings.Repeat("k", 40), cfg.APIKey)
}

func TestLoadConfigMissingCredentialsFatal(t *testing.T) {
	t.Setenv("ORACLE_BASE_URL", "")
	t.Setenv("ORACLE_API_KEY", "")

	_, err := LoadConfig("")
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}
