package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the resilience core.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// A config file (JSON or YAML) can be layered in between defaults and
// environment variables via LoadFromFile.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithServiceName("studio-assist"),
//	    WithCacheCapacity(250),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// ServiceName identifies this process in logs and metrics.
	ServiceName string `json:"service_name" yaml:"service_name" env:"AICORE_SERVICE_NAME"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Retry configuration
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Health tracking configuration
	Health HealthConfig `json:"health" yaml:"health"`

	// Preserved-state storage configuration
	State StateConfig `json:"state" yaml:"state"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// CacheConfig contains contextual cache settings.
type CacheConfig struct {
	Capacity           int           `json:"capacity" yaml:"capacity" env:"AICORE_CACHE_CAPACITY"`
	TTL                time.Duration `json:"ttl" yaml:"ttl" env:"AICORE_CACHE_TTL"`
	SimilarityMinimum  float64       `json:"similarity_minimum" yaml:"similarity_minimum" env:"AICORE_CACHE_SIMILARITY_MIN"`
	ContextualMatching bool          `json:"contextual_matching" yaml:"contextual_matching" env:"AICORE_CACHE_CONTEXTUAL"`
}

// RetryConfig contains retry settings for the primary path. Backoff is linear:
// delay = RetryDelay * attemptNumber.
type RetryConfig struct {
	MaxRetries     int           `json:"max_retries" yaml:"max_retries" env:"AICORE_RETRY_MAX"`
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout" env:"AICORE_RETRY_TIMEOUT"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay" env:"AICORE_RETRY_DELAY"`
}

// HealthConfig contains backend health tracking settings.
type HealthConfig struct {
	SweepInterval  time.Duration `json:"sweep_interval" yaml:"sweep_interval" env:"AICORE_HEALTH_SWEEP_INTERVAL"`
	RecoveryWindow time.Duration `json:"recovery_window" yaml:"recovery_window" env:"AICORE_HEALTH_RECOVERY_WINDOW"`
}

// StateConfig selects where preserved operation context is written.
// Supports in-memory storage (default) or Redis for shared state.
type StateConfig struct {
	Provider string        `json:"provider" yaml:"provider" env:"AICORE_STATE_PROVIDER"`
	RedisURL string        `json:"redis_url" yaml:"redis_url" env:"AICORE_STATE_REDIS_URL,REDIS_URL"`
	Prefix   string        `json:"prefix" yaml:"prefix" env:"AICORE_STATE_PREFIX"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" env:"AICORE_STATE_TTL"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
// In Kubernetes environments, JSON format is recommended for log aggregation.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"AICORE_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"AICORE_LOG_FORMAT"`
	Output string `json:"output" yaml:"output" env:"AICORE_LOG_OUTPUT"`
}

// TelemetryConfig contains observability configuration.
// This is an optional module - telemetry is only initialized when Enabled=true.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"AICORE_TELEMETRY_ENABLED"`
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"AICORE_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Option is a functional option for configuring the core.
// Options are applied in order and can return an error if invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// Defaults are adjusted based on the detected environment: JSON logging under
// Kubernetes, text logging for local development.
func DefaultConfig() *Config {
	cfg := &Config{
		ServiceName: "aicore",
		Cache: CacheConfig{
			Capacity:           DefaultCacheCapacity,
			TTL:                DefaultCacheTTL,
			SimilarityMinimum:  0.6,
			ContextualMatching: true,
		},
		Retry: RetryConfig{
			MaxRetries:     DefaultMaxRetries,
			AttemptTimeout: DefaultAttemptTimeout,
			RetryDelay:     DefaultRetryDelay,
		},
		Health: HealthConfig{
			SweepInterval:  DefaultSweepInterval,
			RecoveryWindow: DefaultRecoveryWindow,
		},
		State: StateConfig{
			Provider: "inmemory",
			Prefix:   DefaultStatePrefix,
			TTL:      DefaultStateTTL,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}

	cfg.detectEnvironment()

	return cfg
}

// detectEnvironment adjusts defaults based on the detected environment.
// Kubernetes is detected via the KUBERNETES_SERVICE_HOST variable.
func (c *Config) detectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Logging.Format = "json"
	}
}

// NewConfig creates a configuration applying defaults, environment variables,
// and finally the provided options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	cfg.applyEnvironment()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying config option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvironment overlays environment variables onto the config.
// Only variables that are set override existing values.
func (c *Config) applyEnvironment() {
	setString(&c.ServiceName, "AICORE_SERVICE_NAME")

	setInt(&c.Cache.Capacity, "AICORE_CACHE_CAPACITY")
	setDuration(&c.Cache.TTL, "AICORE_CACHE_TTL")
	setFloat(&c.Cache.SimilarityMinimum, "AICORE_CACHE_SIMILARITY_MIN")
	setBool(&c.Cache.ContextualMatching, "AICORE_CACHE_CONTEXTUAL")

	setInt(&c.Retry.MaxRetries, "AICORE_RETRY_MAX")
	setDuration(&c.Retry.AttemptTimeout, "AICORE_RETRY_TIMEOUT")
	setDuration(&c.Retry.RetryDelay, "AICORE_RETRY_DELAY")

	setDuration(&c.Health.SweepInterval, "AICORE_HEALTH_SWEEP_INTERVAL")
	setDuration(&c.Health.RecoveryWindow, "AICORE_HEALTH_RECOVERY_WINDOW")

	setString(&c.State.Provider, "AICORE_STATE_PROVIDER")
	setString(&c.State.RedisURL, "AICORE_STATE_REDIS_URL", "REDIS_URL")
	setString(&c.State.Prefix, "AICORE_STATE_PREFIX")
	setDuration(&c.State.TTL, "AICORE_STATE_TTL")

	setString(&c.Logging.Level, "AICORE_LOG_LEVEL")
	setString(&c.Logging.Format, "AICORE_LOG_FORMAT")
	setString(&c.Logging.Output, "AICORE_LOG_OUTPUT")

	setBool(&c.Telemetry.Enabled, "AICORE_TELEMETRY_ENABLED")
	setString(&c.Telemetry.Endpoint, "AICORE_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// LoadFromFile loads configuration from a JSON or YAML file, overlaying values
// onto the receiver. The format is chosen by extension.
func (c *Config) LoadFromFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfiguration, ext)
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is operator-supplied configuration
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	}

	return nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("%w: cache capacity must be at least 1, got %d", ErrInvalidConfiguration, c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache TTL must be positive, got %v", ErrInvalidConfiguration, c.Cache.TTL)
	}
	if c.Cache.SimilarityMinimum < 0 || c.Cache.SimilarityMinimum > 1 {
		return fmt.Errorf("%w: similarity minimum must be between 0 and 1, got %f", ErrInvalidConfiguration, c.Cache.SimilarityMinimum)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidConfiguration, c.Retry.MaxRetries)
	}
	if c.Retry.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: attempt timeout must be positive, got %v", ErrInvalidConfiguration, c.Retry.AttemptTimeout)
	}
	if c.Retry.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must be non-negative, got %v", ErrInvalidConfiguration, c.Retry.RetryDelay)
	}
	if c.Health.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive, got %v", ErrInvalidConfiguration, c.Health.SweepInterval)
	}
	if c.Health.RecoveryWindow <= 0 {
		return fmt.Errorf("%w: recovery window must be positive, got %v", ErrInvalidConfiguration, c.Health.RecoveryWindow)
	}
	switch c.State.Provider {
	case "inmemory", "redis":
	default:
		return fmt.Errorf("%w: unknown state provider %q", ErrInvalidConfiguration, c.State.Provider)
	}
	if c.State.Provider == "redis" && c.State.RedisURL == "" {
		return fmt.Errorf("%w: redis state provider requires a redis URL", ErrMissingConfiguration)
	}
	return nil
}

// Functional options

// WithServiceName sets the service name used in logs and metrics.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("%w: service name cannot be empty", ErrInvalidConfiguration)
		}
		c.ServiceName = name
		return nil
	}
}

// WithCacheCapacity sets the contextual cache capacity.
func WithCacheCapacity(capacity int) Option {
	return func(c *Config) error {
		if capacity < 1 {
			return fmt.Errorf("%w: cache capacity must be at least 1", ErrInvalidConfiguration)
		}
		c.Cache.Capacity = capacity
		return nil
	}
}

// WithCacheTTL sets the contextual cache time-to-live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache TTL must be positive", ErrInvalidConfiguration)
		}
		c.Cache.TTL = ttl
		return nil
	}
}

// WithRetry sets the retry budget and per-attempt timeout.
func WithRetry(maxRetries int, attemptTimeout, retryDelay time.Duration) Option {
	return func(c *Config) error {
		c.Retry.MaxRetries = maxRetries
		c.Retry.AttemptTimeout = attemptTimeout
		c.Retry.RetryDelay = retryDelay
		return nil
	}
}

// WithRecoveryWindow sets the health auto-heal quiet period.
func WithRecoveryWindow(window time.Duration) Option {
	return func(c *Config) error {
		if window <= 0 {
			return fmt.Errorf("%w: recovery window must be positive", ErrInvalidConfiguration)
		}
		c.Health.RecoveryWindow = window
		return nil
	}
}

// WithRedisState selects the Redis preserved-state provider.
func WithRedisState(redisURL string) Option {
	return func(c *Config) error {
		if redisURL == "" {
			return fmt.Errorf("%w: redis URL cannot be empty", ErrMissingConfiguration)
		}
		c.State.Provider = "redis"
		c.State.RedisURL = redisURL
		return nil
	}
}

// WithConfigFile layers a JSON or YAML config file onto the defaults.
// File values are applied before later options and before validation.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// env helpers

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
