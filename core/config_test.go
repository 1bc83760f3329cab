package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "aicore", cfg.ServiceName)
	assert.Equal(t, DefaultCacheCapacity, cfg.Cache.Capacity)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, 0.6, cfg.Cache.SimilarityMinimum)
	assert.True(t, cfg.Cache.ContextualMatching)
	assert.Equal(t, DefaultMaxRetries, cfg.Retry.MaxRetries)
	assert.Equal(t, DefaultAttemptTimeout, cfg.Retry.AttemptTimeout)
	assert.Equal(t, DefaultSweepInterval, cfg.Health.SweepInterval)
	assert.Equal(t, DefaultRecoveryWindow, cfg.Health.RecoveryWindow)
	assert.Equal(t, "inmemory", cfg.State.Provider)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigWithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithServiceName("studio-assist"),
		WithCacheCapacity(250),
		WithCacheTTL(2*time.Hour),
		WithRetry(5, 20*time.Second, 2*time.Second),
		WithRecoveryWindow(10*time.Minute),
	)
	require.NoError(t, err)

	assert.Equal(t, "studio-assist", cfg.ServiceName)
	assert.Equal(t, 250, cfg.Cache.Capacity)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.Retry.AttemptTimeout)
	assert.Equal(t, 2*time.Second, cfg.Retry.RetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.Health.RecoveryWindow)
}

func TestNewConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("AICORE_SERVICE_NAME", "from-env")
	t.Setenv("AICORE_CACHE_CAPACITY", "42")
	t.Setenv("AICORE_RETRY_MAX", "7")
	t.Setenv("AICORE_CACHE_TTL", "45m")
	t.Setenv("AICORE_CACHE_CONTEXTUAL", "false")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.ServiceName)
	assert.Equal(t, 42, cfg.Cache.Capacity)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 45*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.ContextualMatching)
}

func TestOptionsOverrideEnvironment(t *testing.T) {
	t.Setenv("AICORE_SERVICE_NAME", "from-env")

	cfg, err := NewConfig(WithServiceName("from-option"))
	require.NoError(t, err)
	assert.Equal(t, "from-option", cfg.ServiceName)
}

func TestWithRedisState(t *testing.T) {
	cfg, err := NewConfig(WithRedisState("redis://localhost:6379"))
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.State.Provider)
	assert.Equal(t, "redis://localhost:6379", cfg.State.RedisURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"negative TTL", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"similarity above one", func(c *Config) { c.Cache.SimilarityMinimum = 1.5 }},
		{"zero retries", func(c *Config) { c.Retry.MaxRetries = 0 }},
		{"zero attempt timeout", func(c *Config) { c.Retry.AttemptTimeout = 0 }},
		{"zero sweep interval", func(c *Config) { c.Health.SweepInterval = 0 }},
		{"unknown state provider", func(c *Config) { c.State.Provider = "dynamo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestValidateRedisRequiresURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.State.Provider = "redis"
	cfg.State.RedisURL = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingConfiguration)
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
service_name: from-file
cache:
  capacity: 75
retry:
  max_retries: 4
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := NewConfig(WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.ServiceName)
	assert.Equal(t, 75, cfg.Cache.Capacity)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := []byte(`{"service_name": "from-json"}`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := NewConfig(WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, "from-json", cfg.ServiceName)
}

func TestLoadFromFileRejectsUnknownExtension(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile("config.toml"))
}
