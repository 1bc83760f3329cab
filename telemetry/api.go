package telemetry

import "time"

// Counter increments a counter by one.
//
//	telemetry.Counter("operations.total", "backend", "primary")
func Counter(name string, labels ...string) {
	Emit(name, 1, labels...)
}

// Histogram records one sample of a distribution.
func Histogram(name string, value float64, labels ...string) {
	Emit(name, value, labels...)
}

// Gauge records a point-in-time value.
func Gauge(name string, value float64, labels ...string) {
	Emit(name, value, labels...)
}

// Duration records elapsed time since startTime in milliseconds.
func Duration(name string, startTime time.Time, labels ...string) {
	Emit(name, float64(time.Since(startTime).Milliseconds()), labels...)
}

// RecordError counts an error by type.
func RecordError(name, errorType string, labels ...string) {
	Emit(name, 1, append([]string{"error_type", errorType}, labels...)...)
}
