package telemetry

import (
	"testing"
	"time"

	"github.com/studioloom/aicore/core"
)

func TestParseLabels(t *testing.T) {
	labels := parseLabels("backend", "primary", "status", "success")
	if len(labels) != 2 {
		t.Fatalf("len = %d", len(labels))
	}
	if labels["backend"] != "primary" || labels["status"] != "success" {
		t.Errorf("labels = %v", labels)
	}
}

func TestParseLabelsDropsDanglingKey(t *testing.T) {
	labels := parseLabels("backend", "primary", "orphan")
	if _, ok := labels["orphan"]; ok {
		t.Error("dangling key should be dropped")
	}
	if len(labels) != 1 {
		t.Errorf("len = %d", len(labels))
	}
}

func TestEmitBeforeInitializeIsNoOp(t *testing.T) {
	// Must not panic or block when the registry was never initialized.
	Emit("aicore.operations.total", 1, "backend", "primary")
	Counter("aicore.operations.total")
	Histogram("aicore.operation.duration_ms", 12.5)
	Gauge("aicore.cache.size", 3)
	Duration("aicore.operation.duration_ms", time.Now())
	RecordError("aicore.errors.total", "timeout")
}

func TestDeclareMetricsBeforeInitialize(t *testing.T) {
	DeclareMetrics("test-module", ModuleConfig{
		Metrics: []MetricDefinition{
			{Name: "test.metric", Type: "counter"},
		},
	})

	stored, ok := declaredMetrics.Load("test-module")
	if !ok {
		t.Fatal("declaration should be stored before Initialize")
	}
	if len(stored.(ModuleConfig).Metrics) != 1 {
		t.Error("declaration content lost")
	}
}

func TestRegistryEmitCountsSamples(t *testing.T) {
	registry, err := newRegistry(Config{
		Enabled:     true,
		ServiceName: "registry-test",
		Endpoint:    StdoutEndpoint,
	}, &core.NoOpLogger{})
	if err != nil {
		t.Fatalf("newRegistry: %v", err)
	}

	errorsBefore := telemetryErrors.Load()
	registry.emit("test.emit.total", 1, map[string]string{"backend": "primary"})
	registry.emit("test.emit.total", 1, map[string]string{"backend": "primary"})

	if got := registry.emitted.Load(); got != 2 {
		t.Errorf("emitted = %d, want 2", got)
	}
	if got := telemetryErrors.Load(); got != errorsBefore {
		t.Errorf("error counter moved by %d on successful emits", got-errorsBefore)
	}
	if registry.errorLimiter == nil {
		t.Fatal("registry should carry an error rate limiter")
	}
}

func TestRateLimiterAllowsFirstOnly(t *testing.T) {
	limiter := NewRateLimiter(time.Hour)
	if !limiter.Allow() {
		t.Fatal("first event should pass")
	}
	if limiter.Allow() {
		t.Error("second event inside the interval should be blocked")
	}
}

func TestUseProfile(t *testing.T) {
	dev := UseProfile(ProfileDevelopment)
	if dev.Endpoint != StdoutEndpoint {
		t.Errorf("development endpoint = %s", dev.Endpoint)
	}
	prod := UseProfile(ProfileProduction)
	if prod.CardinalityLimit != 10000 {
		t.Errorf("production cardinality limit = %d", prod.CardinalityLimit)
	}
	unknown := UseProfile("nope")
	if unknown.Endpoint != dev.Endpoint {
		t.Error("unknown profile should default to development")
	}
}
