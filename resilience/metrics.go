package resilience

// MetricsCollector is the instrumentation seam for the resilience components.
// A nil-safe no-op implementation is used when no telemetry is wired in, so
// callers never need to guard their metric calls.
type MetricsCollector interface {
	// RecordAttempt counts one primary-backend attempt.
	RecordAttempt(backend string, attempt int)

	// RecordOutcome records the terminal status of an operation and its
	// total duration in milliseconds. Status is one of "success",
	// "fallback" or "failed".
	RecordOutcome(backend, status string, durationMs float64)

	// RecordCacheLookup counts a cache lookup result: "exact",
	// "contextual" or "miss".
	RecordCacheLookup(result string)

	// RecordFallback counts a fallback dispatch by strategy and reason.
	RecordFallback(strategy, reason string)

	// RecordHealthTransition counts a backend health state change.
	RecordHealthTransition(backend, from, to string)
}

type noopMetrics struct{}

func (noopMetrics) RecordAttempt(string, int)                     {}
func (noopMetrics) RecordOutcome(string, string, float64)         {}
func (noopMetrics) RecordCacheLookup(string)                      {}
func (noopMetrics) RecordFallback(string, string)                 {}
func (noopMetrics) RecordHealthTransition(string, string, string) {}

func ensureMetrics(m MetricsCollector) MetricsCollector {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
