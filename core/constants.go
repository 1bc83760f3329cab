package core

import "time"

// Cache defaults
const (
	// DefaultCacheCapacity bounds the contextual cache entry count.
	DefaultCacheCapacity = 100

	// DefaultCacheTTL is how long a cached result stays servable.
	DefaultCacheTTL = 1 * time.Hour
)

// Retry defaults
const (
	// DefaultMaxRetries is the attempt budget before fallback.
	DefaultMaxRetries = 3

	// DefaultAttemptTimeout bounds a single primary call.
	DefaultAttemptTimeout = 10 * time.Second

	// DefaultRetryDelay is the base backoff unit; actual delay is
	// DefaultRetryDelay * attemptNumber (linear, not exponential).
	DefaultRetryDelay = 1 * time.Second
)

// Health defaults
const (
	// DefaultSweepInterval is how often the auto-heal sweep runs.
	DefaultSweepInterval = 60 * time.Second

	// DefaultRecoveryWindow is the quiet period after which an unhealthy
	// backend is optimistically marked healthy again.
	DefaultRecoveryWindow = 5 * time.Minute
)

// Preserved-state defaults
const (
	// DefaultStatePrefix namespaces preserved-operation keys.
	DefaultStatePrefix = "aicore:pending:"

	// DefaultStateTTL bounds how long preserved context is kept around
	// for a human to resume from.
	DefaultStateTTL = 24 * time.Hour
)

// DefaultBackend is the backend id used when an operation names none.
const DefaultBackend = "primary"
