package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studioloom/aicore/core"
)

// PrimaryFunc is one call against an AI backend. Implementations should honor
// ctx; a call that keeps running past its deadline is tolerated, but its
// result is discarded.
type PrimaryFunc func(ctx context.Context) (interface{}, error)

// RetryExecutor runs a primary function up to a bounded number of attempts,
// each under its own deadline, with linearly growing pauses in between. It
// feeds every outcome into the health tracker and refuses to start at all
// when the target backend is already unhealthy.
type RetryExecutor struct {
	maxRetries     int
	attemptTimeout time.Duration
	retryDelay     time.Duration
	health         *HealthTracker
	logger         core.Logger
	metrics        MetricsCollector
}

// RetryOption configures a RetryExecutor.
type RetryOption func(*RetryExecutor)

// WithMaxRetries sets the attempt budget.
func WithMaxRetries(n int) RetryOption {
	return func(e *RetryExecutor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithAttemptTimeout sets the per-attempt deadline.
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(e *RetryExecutor) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

// WithRetryDelay sets the base pause between attempts. The pause after
// attempt n is n times this value.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(e *RetryExecutor) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

// WithRetryLogger sets the logger.
func WithRetryLogger(logger core.Logger) RetryOption {
	return func(e *RetryExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRetryMetrics sets the metrics collector.
func WithRetryMetrics(metrics MetricsCollector) RetryOption {
	return func(e *RetryExecutor) {
		e.metrics = metrics
	}
}

// NewRetryExecutor creates an executor bound to a health tracker.
func NewRetryExecutor(health *HealthTracker, opts ...RetryOption) *RetryExecutor {
	e := &RetryExecutor{
		maxRetries:     core.DefaultMaxRetries,
		attemptTimeout: core.DefaultAttemptTimeout,
		retryDelay:     core.DefaultRetryDelay,
		health:         health,
		logger:         &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = ensureMetrics(e.metrics)
	return e
}

// Budget overrides the executor's retry configuration for one call, so
// concurrent operations can carry different deadlines and attempt budgets.
// Zero values keep the executor-wide defaults.
type Budget struct {
	MaxRetries     int
	AttemptTimeout time.Duration
}

// Execute runs fn against the named backend until it succeeds or the attempt
// budget is spent. It returns the result, the number of attempts actually
// made, and an error classifying the failure. When the backend is unhealthy
// no attempt is made and the attempt count is zero.
func (e *RetryExecutor) Execute(ctx context.Context, backend string, fn PrimaryFunc) (interface{}, int, error) {
	return e.ExecuteWith(ctx, backend, fn, Budget{})
}

// ExecuteWith is Execute with a per-call budget.
func (e *RetryExecutor) ExecuteWith(ctx context.Context, backend string, fn PrimaryFunc, budget Budget) (interface{}, int, error) {
	maxRetries := e.maxRetries
	if budget.MaxRetries > 0 {
		maxRetries = budget.MaxRetries
	}
	attemptTimeout := e.attemptTimeout
	if budget.AttemptTimeout > 0 {
		attemptTimeout = budget.AttemptTimeout
	}

	if e.health != nil && !e.health.IsHealthy(backend) {
		e.logger.Warn("Skipping unhealthy backend", map[string]interface{}{
			"operation": "retry_gate",
			"backend":   backend,
		})
		return nil, 0, fmt.Errorf("backend %s: %w", backend, core.ErrServiceUnhealthy)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		e.metrics.RecordAttempt(backend, attempt)

		result, err := e.attempt(ctx, fn, attemptTimeout)
		if err == nil {
			if e.health != nil {
				e.health.MarkSuccess(backend)
			}
			return result, attempt, nil
		}

		lastErr = err
		if e.health != nil {
			e.health.MarkFailure(backend, classifyFailure(err))
		}
		e.logger.Warn("Attempt failed", map[string]interface{}{
			"operation": "retry_attempt",
			"backend":   backend,
			"attempt":   attempt,
			"max":       maxRetries,
			"error":     err.Error(),
		})

		if errors.Is(err, context.Canceled) {
			return nil, attempt, fmt.Errorf("%w: %v", core.ErrContextCanceled, err)
		}

		// No pause after the final attempt.
		if attempt < maxRetries {
			if err := e.pause(ctx, time.Duration(attempt)*e.retryDelay); err != nil {
				return nil, attempt, fmt.Errorf("%w: %v", core.ErrContextCanceled, err)
			}
		}
	}

	return nil, maxRetries, fmt.Errorf("%w after %d attempts: %w", core.ErrMaxRetriesExceeded, maxRetries, lastErr)
}

// attempt runs fn once under its own deadline. The call runs on a separate
// goroutine; if the deadline fires first the attempt fails with a timeout and
// the in-flight call is left to finish into a buffered channel nobody reads
// for a result.
func (e *RetryExecutor) attempt(ctx context.Context, fn PrimaryFunc, timeout time.Duration) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic in primary call: %v", core.ErrTransientBackend, r)}
			}
		}()
		value, err := fn(attemptCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, e.normalize(out.err)
		}
		return out.value, nil
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", core.ErrTimeout, timeout)
		}
		return nil, attemptCtx.Err()
	}
}

// normalize maps raw backend errors onto the package's failure taxonomy so
// callers can classify with errors.Is.
func (e *RetryExecutor) normalize(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", context.Canceled, err)
	}
	if core.IsRetryable(err) || core.IsTimeout(err) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrTransientBackend, err)
}

func (e *RetryExecutor) pause(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyFailure maps an error to a fallback reason code.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, core.ErrServiceUnhealthy):
		return core.ReasonServiceUnhealthy
	case errors.Is(err, core.ErrMaxRetriesExceeded):
		return core.ReasonRetriesExhausted
	case errors.Is(err, core.ErrTimeout):
		return core.ReasonTimeout
	default:
		return core.ReasonBackendError
	}
}
