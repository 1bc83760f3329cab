package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/studioloom/aicore/core"
)

func TestNewSystemDefaults(t *testing.T) {
	system, err := NewSystem(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if system.Cache == nil || system.Health == nil || system.Retry == nil ||
		system.Dispatcher == nil || system.Orchestrator == nil || system.Notifier == nil {
		t.Fatal("all components should be wired")
	}
	if system.Config.ServiceName != "aicore" {
		t.Errorf("service name = %s", system.Config.ServiceName)
	}
}

func TestNewSystemRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Cache.Capacity = 0

	if _, err := NewSystem(cfg); !core.IsConfigurationError(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestNewSystemRejectsUnknownStateProvider(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.State.Provider = "dynamo"

	if _, err := NewSystem(cfg); err == nil {
		t.Error("expected error for unknown state provider")
	}
}

func TestSystemEndToEnd(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Retry.AttemptTimeout = 100 * time.Millisecond
	cfg.Retry.RetryDelay = time.Millisecond

	system, err := NewSystem(cfg,
		WithSystemManualHandler(func(ctx context.Context, req ManualRequest) (interface{}, error) {
			return "queued for editor", nil
		}),
	)
	if err != nil {
		t.Fatalf("wiring: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := system.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := system.Orchestrator.Run(ctx,
		Payload{Prompt: "write the outro", Focus: "copywriting"},
		Options{},
		func(ctx context.Context) (interface{}, error) {
			return "the outro text", nil
		})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Value != "the outro text" {
		t.Errorf("value = %v", result.Value)
	}

	failing, err := system.Orchestrator.Run(ctx,
		Payload{Prompt: "draft the email", Focus: "copywriting"},
		Options{},
		func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("model overloaded")
		})
	if err != nil {
		t.Fatalf("fallback run: %v", err)
	}
	if !failing.FallbackUsed || !failing.ManualOverride {
		t.Errorf("expected manual fallback, got %+v", failing)
	}

	if err := system.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSystemPreservedKeyNamespacedOnce(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Retry.AttemptTimeout = 100 * time.Millisecond
	cfg.Retry.RetryDelay = time.Millisecond

	var captured ManualRequest
	system, err := NewSystem(cfg,
		WithSystemManualHandler(func(ctx context.Context, req ManualRequest) (interface{}, error) {
			captured = req
			return "queued for editor", nil
		}),
	)
	if err != nil {
		t.Fatalf("wiring: %v", err)
	}

	ctx := context.Background()
	result, err := system.Orchestrator.Run(ctx,
		Payload{Prompt: "draft the email", Focus: "copywriting"},
		Options{MaxRetries: 1, PreserveState: true},
		func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("model overloaded")
		})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := cfg.State.Prefix + result.OperationID
	if captured.PreservedKey != want {
		t.Errorf("preserved key = %q, want %q", captured.PreservedKey, want)
	}
	if n := strings.Count(captured.PreservedKey, cfg.State.Prefix); n != 1 {
		t.Errorf("prefix applied %d times, want exactly once", n)
	}

	// The key handed to the manual handler is the literal stored key.
	doc, err := system.states.Get(ctx, captured.PreservedKey)
	if err != nil || doc == "" {
		t.Errorf("preserved state not readable under %q: doc=%q err=%v",
			captured.PreservedKey, doc, err)
	}
}
