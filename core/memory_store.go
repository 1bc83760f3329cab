package core

import (
	"context"
	"sync"
	"time"
)

// MemoryStateStore is an in-memory implementation of the StateStore interface.
// It backs preserved-operation state for single-process deployments.
type MemoryStateStore struct {
	mu     sync.RWMutex
	store  map[string]stateEntry
	logger Logger
}

type stateEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStateStore creates a new in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		store:  make(map[string]stateEntry),
		logger: &NoOpLogger{},
	}
}

// SetLogger configures the logger for this state store
func (m *MemoryStateStore) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Get retrieves a value. Missing and expired keys both return empty with no
// error; storage problems never surface to fallback dispatch.
func (m *MemoryStateStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.store[key]
	if !exists {
		m.logger.Debug("State lookup miss", map[string]interface{}{
			"operation": "state_get",
			"key":       key,
			"result":    "miss",
		})
		return "", nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.logger.Debug("State entry expired", map[string]interface{}{
			"operation":  "state_get",
			"key":        key,
			"result":     "expired",
			"expired_at": entry.expiresAt.Format(time.RFC3339),
		})
		return "", nil
	}

	m.logger.Debug("State lookup hit", map[string]interface{}{
		"operation": "state_get",
		"key":       key,
		"result":    "hit",
	})

	return entry.value, nil
}

// Set stores a value with optional TTL (zero means no expiry)
func (m *MemoryStateStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := stateEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.store[key] = entry

	m.logger.Debug("State set", map[string]interface{}{
		"operation":  "state_set",
		"key":        key,
		"value_size": len(value),
		"has_ttl":    ttl > 0,
	})

	return nil
}

// Delete removes a value
func (m *MemoryStateStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.store[key]
	delete(m.store, key)

	m.logger.Debug("State delete", map[string]interface{}{
		"operation": "state_delete",
		"key":       key,
		"existed":   existed,
	})

	return nil
}

// Exists checks if a key exists and has not expired
func (m *MemoryStateStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.store[key]
	if !exists {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}
