package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studioloom/aicore/core"
)

func newTestExecutor(health *HealthTracker) *RetryExecutor {
	return NewRetryExecutor(health,
		WithMaxRetries(3),
		WithAttemptTimeout(100*time.Millisecond),
		WithRetryDelay(5*time.Millisecond),
	)
}

func TestRetrySuccessFirstAttempt(t *testing.T) {
	executor := newTestExecutor(NewHealthTracker())

	calls := 0
	result, attempts, err := executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v", result)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1/1", attempts, calls)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	executor := newTestExecutor(NewHealthTracker())

	calls := 0
	result, attempts, err := executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("model overloaded")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v", result)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3/3", attempts, calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	executor := newTestExecutor(NewHealthTracker())

	calls := 0
	_, attempts, err := executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("model overloaded")
	})

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want exactly the budget of 3", attempts)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly 3", calls)
	}
}

func TestRetryPerCallBudgetOverridesRetries(t *testing.T) {
	executor := NewRetryExecutor(NewHealthTracker(),
		WithMaxRetries(5),
		WithAttemptTimeout(100*time.Millisecond),
		WithRetryDelay(time.Millisecond),
	)

	calls := 0
	_, attempts, err := executor.ExecuteWith(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("model overloaded")
	}, Budget{MaxRetries: 2})

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 2 || calls != 2 {
		t.Errorf("attempts = %d, calls = %d, want the per-call budget of 2", attempts, calls)
	}
}

func TestRetryPerCallBudgetOverridesTimeout(t *testing.T) {
	executor := NewRetryExecutor(NewHealthTracker(),
		WithMaxRetries(1),
		WithAttemptTimeout(time.Second),
		WithRetryDelay(time.Millisecond),
	)

	start := time.Now()
	_, _, err := executor.ExecuteWith(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "too late", nil
		}
	}, Budget{AttemptTimeout: 20 * time.Millisecond})

	if !errors.Is(err, core.ErrTimeout) {
		t.Errorf("expected a timeout classification, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("per-call deadline not applied, call took %s", elapsed)
	}
}

func TestRetryZeroBudgetUsesDefaults(t *testing.T) {
	executor := newTestExecutor(NewHealthTracker())

	calls := 0
	_, attempts, err := executor.ExecuteWith(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("model overloaded")
	}, Budget{})

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want the executor default of 3", attempts, calls)
	}
}

func TestRetryAttemptTimeout(t *testing.T) {
	executor := NewRetryExecutor(NewHealthTracker(),
		WithMaxRetries(2),
		WithAttemptTimeout(20*time.Millisecond),
		WithRetryDelay(time.Millisecond),
	)

	_, attempts, err := executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "too late", nil
		}
	})

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, core.ErrTimeout) {
		t.Errorf("last attempt error should classify as timeout, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetrySkipsUnhealthyBackend(t *testing.T) {
	health := NewHealthTracker()
	health.MarkFailure("primary", "timeout")
	executor := newTestExecutor(health)

	calls := 0
	_, attempts, err := executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})

	if !errors.Is(err, core.ErrServiceUnhealthy) {
		t.Errorf("expected ErrServiceUnhealthy, got %v", err)
	}
	if calls != 0 {
		t.Errorf("primary must not be invoked while unhealthy, calls = %d", calls)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestRetryReportsHealthOutcomes(t *testing.T) {
	health := NewHealthTracker()
	executor := newTestExecutor(health)

	executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("model overloaded")
	})
	if health.IsHealthy("primary") {
		t.Error("failures should degrade the backend")
	}

	// The gate now blocks, so recover manually and verify success heals.
	health.MarkSuccess("primary")
	executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	if !health.IsHealthy("primary") {
		t.Error("success should keep the backend healthy")
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	executor := NewRetryExecutor(NewHealthTracker(),
		WithMaxRetries(5),
		WithAttemptTimeout(time.Second),
		WithRetryDelay(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := executor.Execute(ctx, "primary", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("model overloaded")
	})

	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation should interrupt the backoff pause")
	}
	if calls > 2 {
		t.Errorf("cancellation should stop further attempts, calls = %d", calls)
	}
}

func TestRetryLateResponseDiscarded(t *testing.T) {
	executor := NewRetryExecutor(NewHealthTracker(),
		WithMaxRetries(1),
		WithAttemptTimeout(20*time.Millisecond),
	)

	finished := make(chan struct{})
	_, _, err := executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		defer close(finished)
		time.Sleep(100 * time.Millisecond)
		return "late result", nil
	})

	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("timed-out attempt should fail, got %v", err)
	}

	// The orphaned call completes without being delivered anywhere.
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Error("in-flight call should be allowed to finish")
	}
}

func TestRetryLinearBackoff(t *testing.T) {
	executor := NewRetryExecutor(NewHealthTracker(),
		WithMaxRetries(3),
		WithAttemptTimeout(time.Second),
		WithRetryDelay(20*time.Millisecond),
	)

	var timestamps []time.Time
	executor.Execute(context.Background(), "primary", func(ctx context.Context) (interface{}, error) {
		timestamps = append(timestamps, time.Now())
		return nil, errors.New("model overloaded")
	})

	if len(timestamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(timestamps))
	}
	firstGap := timestamps[1].Sub(timestamps[0])
	secondGap := timestamps[2].Sub(timestamps[1])
	if firstGap < 20*time.Millisecond {
		t.Errorf("first pause %v should be at least the base delay", firstGap)
	}
	if secondGap < 40*time.Millisecond {
		t.Errorf("second pause %v should be at least twice the base delay", secondGap)
	}
}
