package resilience

import "github.com/studioloom/aicore/telemetry"

// Metric declarations are made at package load so the telemetry registry
// knows the instrument types before Initialize runs.
func init() {
	telemetry.DeclareMetrics("resilience", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name:   "aicore.operations.total",
				Type:   "counter",
				Help:   "Operations by terminal status",
				Labels: []string{"backend", "status"},
			},
			{
				Name:   "aicore.operation.duration_ms",
				Type:   "histogram",
				Help:   "End-to-end operation duration",
				Labels: []string{"backend", "status"},
			},
			{
				Name:   "aicore.attempts.total",
				Type:   "counter",
				Help:   "Primary backend attempts",
				Labels: []string{"backend", "attempt"},
			},
			{
				Name:   "aicore.cache.lookups.total",
				Type:   "counter",
				Help:   "Cache lookups by result",
				Labels: []string{"result"},
			},
			{
				Name:   "aicore.fallbacks.total",
				Type:   "counter",
				Help:   "Fallback dispatches by strategy and reason",
				Labels: []string{"strategy", "reason"},
			},
			{
				Name:   "aicore.health.transitions.total",
				Type:   "counter",
				Help:   "Backend health state changes",
				Labels: []string{"backend", "from", "to"},
			},
		},
	})
}
