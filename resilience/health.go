package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/studioloom/aicore/core"
)

// ServiceHealth is a point-in-time snapshot of one backend's health.
type ServiceHealth struct {
	Backend       string    `json:"backend"`
	Healthy       bool      `json:"healthy"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastReason    string    `json:"last_reason,omitempty"`
}

type serviceState struct {
	healthy       bool
	failureCount  int
	lastFailureAt time.Time
	lastSuccessAt time.Time
	lastReason    string
}

// HealthTracker maintains observed health per backend. A backend becomes
// unhealthy on the first reported failure and healthy again on the next
// reported success or after the recovery window elapses with no further
// failures. The tracker never probes backends itself: recovery via the sweep
// is a timed assumption, and the next real call confirms or refutes it.
type HealthTracker struct {
	mu             sync.RWMutex
	services       map[string]*serviceState
	recoveryWindow time.Duration
	sweepInterval  time.Duration
	logger         core.Logger
	notifier       *Notifier
	metrics        MetricsCollector
	sweepOnce      sync.Once
}

// HealthOption configures a HealthTracker.
type HealthOption func(*HealthTracker)

// WithRecoveryWindow sets how long a backend stays unhealthy with no new
// failures before the sweep marks it healthy again.
func WithRecoveryWindow(window time.Duration) HealthOption {
	return func(t *HealthTracker) {
		if window > 0 {
			t.recoveryWindow = window
		}
	}
}

// WithSweepInterval sets how often the auto-heal sweep runs.
func WithSweepInterval(interval time.Duration) HealthOption {
	return func(t *HealthTracker) {
		if interval > 0 {
			t.sweepInterval = interval
		}
	}
}

// WithHealthLogger sets the logger.
func WithHealthLogger(logger core.Logger) HealthOption {
	return func(t *HealthTracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithHealthNotifier sets the notifier used for degraded/recovered events.
func WithHealthNotifier(notifier *Notifier) HealthOption {
	return func(t *HealthTracker) {
		if notifier != nil {
			t.notifier = notifier
		}
	}
}

// WithHealthMetrics sets the metrics collector.
func WithHealthMetrics(metrics MetricsCollector) HealthOption {
	return func(t *HealthTracker) {
		t.metrics = metrics
	}
}

// NewHealthTracker creates a tracker with the default recovery window and
// sweep interval.
func NewHealthTracker(opts ...HealthOption) *HealthTracker {
	t := &HealthTracker{
		services:       make(map[string]*serviceState),
		recoveryWindow: core.DefaultRecoveryWindow,
		sweepInterval:  core.DefaultSweepInterval,
		logger:         &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.metrics = ensureMetrics(t.metrics)
	return t
}

// IsHealthy reports whether a backend is currently considered healthy.
// Unknown backends are healthy until proven otherwise.
func (t *HealthTracker) IsHealthy(backend string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.services[backend]
	if !ok {
		return true
	}
	return state.healthy
}

// MarkSuccess records a successful call against a backend. An unhealthy
// backend recovers immediately.
func (t *HealthTracker) MarkSuccess(backend string) {
	t.mu.Lock()
	state := t.state(backend)
	state.lastSuccessAt = time.Now()
	recovered := !state.healthy
	if recovered {
		state.healthy = true
		state.failureCount = 0
		state.lastReason = ""
	}
	t.mu.Unlock()

	if recovered {
		t.metrics.RecordHealthTransition(backend, "unhealthy", "healthy")
		t.logger.Info("Backend recovered after successful call", map[string]interface{}{
			"operation": "health_recovery",
			"backend":   backend,
		})
		if t.notifier != nil {
			t.notifier.Emit(Event{
				Type:    EventServiceRecovered,
				Backend: backend,
			})
		}
	}
}

// MarkFailure records a failed call against a backend. The degraded
// notification fires only on the healthy-to-unhealthy transition; repeated
// failures bump the count silently.
func (t *HealthTracker) MarkFailure(backend, reason string) {
	t.mu.Lock()
	state := t.state(backend)
	state.failureCount++
	state.lastFailureAt = time.Now()
	state.lastReason = reason
	degraded := state.healthy
	state.healthy = false
	count := state.failureCount
	t.mu.Unlock()

	if degraded {
		t.metrics.RecordHealthTransition(backend, "healthy", "unhealthy")
		t.logger.Warn("Backend marked unhealthy", map[string]interface{}{
			"operation": "health_degraded",
			"backend":   backend,
			"reason":    reason,
		})
		if t.notifier != nil {
			t.notifier.Emit(Event{
				Type:    EventServiceDegraded,
				Backend: backend,
				Reason:  reason,
			})
		}
	} else {
		t.logger.Debug("Backend failure while already unhealthy", map[string]interface{}{
			"backend":       backend,
			"reason":        reason,
			"failure_count": count,
		})
	}
}

// Snapshot returns the current health of every tracked backend.
func (t *HealthTracker) Snapshot() map[string]ServiceHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ServiceHealth, len(t.services))
	for backend, state := range t.services {
		out[backend] = ServiceHealth{
			Backend:       backend,
			Healthy:       state.healthy,
			FailureCount:  state.failureCount,
			LastFailureAt: state.lastFailureAt,
			LastSuccessAt: state.lastSuccessAt,
			LastReason:    state.lastReason,
		}
	}
	return out
}

// StartSweep launches the auto-heal loop. Unhealthy backends whose last
// failure is older than the recovery window are marked healthy again. The
// loop exits when ctx is canceled. Subsequent calls are no-ops.
func (t *HealthTracker) StartSweep(ctx context.Context) {
	t.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(t.sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					t.sweep()
				}
			}
		}()
	})
}

func (t *HealthTracker) sweep() {
	now := time.Now()

	t.mu.Lock()
	var healed []string
	for backend, state := range t.services {
		if state.healthy {
			continue
		}
		if now.Sub(state.lastFailureAt) >= t.recoveryWindow {
			state.healthy = true
			state.failureCount = 0
			state.lastReason = ""
			healed = append(healed, backend)
		}
	}
	t.mu.Unlock()

	for _, backend := range healed {
		t.metrics.RecordHealthTransition(backend, "unhealthy", "healthy")
		t.logger.Info("Backend auto-healed after recovery window", map[string]interface{}{
			"operation": "health_autoheal",
			"backend":   backend,
			"window":    t.recoveryWindow.String(),
		})
		if t.notifier != nil {
			t.notifier.Emit(Event{
				Type:    EventServiceRecovered,
				Backend: backend,
				Reason:  "recovery_window_elapsed",
			})
		}
	}
}

// state returns the entry for a backend, creating it if needed.
// Callers must hold t.mu.
func (t *HealthTracker) state(backend string) *serviceState {
	s, ok := t.services[backend]
	if !ok {
		s = &serviceState{healthy: true}
		t.services[backend] = s
	}
	return s
}
