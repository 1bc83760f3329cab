package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStateStore provides Redis-backed preserved-state storage. Keys are
// stored exactly as given unless an extra tenant prefix is configured, so the
// key handed to a manual fallback handler is the key a human sees in Redis.
// This lets a human resume a manually-completed operation from any replica.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	logger Logger

	// Stats (atomic for thread-safety)
	hits   int64
	misses int64
}

// RedisStateOption allows customization of the Redis state store.
type RedisStateOption func(*RedisStateStore)

// WithStatePrefix sets an extra Redis key prefix for preserved-state entries.
// By default keys are stored exactly as given, since callers already
// namespace them. Useful for multi-tenant deployments sharing one Redis.
func WithStatePrefix(prefix string) RedisStateOption {
	return func(s *RedisStateStore) {
		s.prefix = prefix
	}
}

// WithStateLogger sets the logger for the Redis state store.
func WithStateLogger(logger Logger) RedisStateOption {
	return func(s *RedisStateStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStateStore creates a Redis-backed state store from a Redis URL.
// The URL may omit the scheme; "host:port" is normalized to "redis://host:port".
//
// Example usage:
//
//	store, err := NewRedisStateStore("redis://localhost:6379",
//	    WithStatePrefix("studio:pending:"),
//	)
func NewRedisStateStore(redisURL string, opts ...RedisStateOption) (*RedisStateStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("%w: redis URL is required", ErrMissingConfiguration)
	}
	if !strings.Contains(redisURL, "://") {
		redisURL = "redis://" + redisURL
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	store := &RedisStateStore{
		client: redis.NewClient(redisOpts),
		logger: &NoOpLogger{},
	}

	for _, opt := range opts {
		opt(store)
	}

	// Verify connectivity up front so misconfiguration fails at construction
	// rather than at the first fallback.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping failed: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Get retrieves a value from Redis. Redis errors degrade to a miss.
func (s *RedisStateStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&s.misses, 1)
		return "", nil
	}
	if err != nil {
		// Redis error - degrade gracefully
		atomic.AddInt64(&s.misses, 1)
		s.logger.Warn("Redis state read failed", map[string]interface{}{
			"operation": "state_get",
			"key":       key,
			"error":     err.Error(),
		})
		return "", nil
	}

	atomic.AddInt64(&s.hits, 1)
	return val, nil
}

// Set stores a value in Redis with the given TTL.
func (s *RedisStateStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state in redis: %w", err)
	}
	return nil
}

// Delete removes a value from Redis.
func (s *RedisStateStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete state from redis: %w", err)
	}
	return nil
}

// Exists checks if a key exists in Redis.
func (s *RedisStateStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check state in redis: %w", err)
	}
	return n > 0, nil
}

// Stats returns read statistics for monitoring.
func (s *RedisStateStore) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&s.hits)
	misses := atomic.LoadInt64(&s.misses)
	total := hits + misses

	stats := map[string]interface{}{
		"hits":          hits,
		"misses":        misses,
		"total_lookups": total,
	}
	if total > 0 {
		stats["hit_rate"] = float64(hits) / float64(total)
	}
	return stats
}

// Close releases the underlying Redis connection.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
