// Package resilience masks the failures of an unreliable, latency-variable
// AI backend: it retries with backoff, gates calls on per-backend health,
// dispatches strategy-selected fallbacks, and reuses prior results through the
// contextual cache.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/studioloom/aicore/core"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventOperationStarted   EventType = "operation_started"
	EventOperationCompleted EventType = "operation_completed"
	EventFallbackTriggered  EventType = "fallback_triggered"
	EventFallbackSucceeded  EventType = "fallback_succeeded"
	EventFallbackFailed     EventType = "fallback_failed"
	EventManualOverride     EventType = "manual_override_activated"
	EventServiceDegraded    EventType = "service_degraded"
	EventServiceRecovered   EventType = "service_recovered"
)

// Event is one lifecycle notification. Events are delivered asynchronously;
// subscribers must treat them as read-only.
type Event struct {
	Type        EventType
	OperationID string
	Backend     string
	Reason      string
	Timestamp   time.Time
	Fields      map[string]interface{}
}

// Subscriber receives lifecycle events. Implementations must not assume they
// run on the emitting goroutine.
type Subscriber interface {
	Notify(event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event Event)

// Notify implements Subscriber.
func (f SubscriberFunc) Notify(event Event) { f(event) }

// Notifier fans lifecycle events out to registered subscribers. Emission never
// blocks the caller: each subscriber is notified on its own goroutine, and a
// panicking subscriber is logged and dropped from that delivery only.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]Subscriber
	nextID uint64
	logger core.Logger
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger core.Logger) *Notifier {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Notifier{
		subs:   make(map[uint64]Subscriber),
		logger: logger,
	}
}

// Subscribe registers a subscriber and returns an unsubscribe function.
func (n *Notifier) Subscribe(sub Subscriber) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[id] = sub
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Emit delivers an event to all current subscribers without blocking.
func (n *Notifier) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	n.mu.RLock()
	targets := make([]Subscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		targets = append(targets, sub)
	}
	n.mu.RUnlock()

	for _, sub := range targets {
		go func(s Subscriber) {
			defer func() {
				if r := recover(); r != nil {
					n.logger.Error("Subscriber panicked during notification", map[string]interface{}{
						"operation":  "notify",
						"event_type": string(event.Type),
						"panic":      fmt.Sprintf("%v", r),
					})
				}
			}()
			s.Notify(event)
		}(sub)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
