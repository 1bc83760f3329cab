package resilience

import (
	"strconv"

	"github.com/studioloom/aicore/telemetry"
)

// TelemetryMetrics implements MetricsCollector on top of the telemetry
// package. Emission is a silent no-op until telemetry.Initialize runs, so
// this adapter can be wired unconditionally.
type TelemetryMetrics struct{}

// NewTelemetryMetrics creates the telemetry-backed collector.
func NewTelemetryMetrics() *TelemetryMetrics {
	return &TelemetryMetrics{}
}

func (t *TelemetryMetrics) RecordAttempt(backend string, attempt int) {
	telemetry.Counter("aicore.attempts.total",
		"backend", backend,
		"attempt", strconv.Itoa(attempt),
	)
}

func (t *TelemetryMetrics) RecordOutcome(backend, status string, durationMs float64) {
	telemetry.Counter("aicore.operations.total",
		"backend", backend,
		"status", status,
	)
	telemetry.Histogram("aicore.operation.duration_ms", durationMs,
		"backend", backend,
		"status", status,
	)
}

func (t *TelemetryMetrics) RecordCacheLookup(result string) {
	telemetry.Counter("aicore.cache.lookups.total", "result", result)
}

func (t *TelemetryMetrics) RecordFallback(strategy, reason string) {
	telemetry.Counter("aicore.fallbacks.total",
		"strategy", strategy,
		"reason", reason,
	)
}

func (t *TelemetryMetrics) RecordHealthTransition(backend, from, to string) {
	telemetry.Counter("aicore.health.transitions.total",
		"backend", backend,
		"from", from,
		"to", to,
	)
}
