// Package telemetry provides the metrics and tracing backbone: a global
// registry initialized once from main(), emit helpers that are safe no-ops
// before initialization, and an OpenTelemetry provider behind them.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studioloom/aicore/core"
)

var (
	// globalRegistry is written once by Initialize and read lock-free on
	// every emit.
	globalRegistry atomic.Value // *Registry

	initOnce sync.Once

	// declaredMetrics collects declarations made from init() functions
	// before Initialize runs.
	declaredMetrics sync.Map // map[string]ModuleConfig

	telemetryErrors  atomic.Int64
	telemetryDropped atomic.Int64
)

// ModuleConfig declares the metrics a module emits.
type ModuleConfig struct {
	Metrics []MetricDefinition
}

// MetricDefinition is one metric's metadata.
type MetricDefinition struct {
	Name   string
	Type   string // counter, histogram, gauge
	Help   string
	Labels []string
}

// Registry coordinates the provider and the cardinality limiter, and tracks
// the telemetry system's own health.
type Registry struct {
	config   Config
	provider *OTelProvider
	limiter  *CardinalityLimiter
	logger   core.Logger

	emitted   atomic.Int64
	startTime time.Time

	errorLimiter *RateLimiter
}

// DeclareMetrics registers metric definitions for a module. Safe to call
// from init() before Initialize; declarations are applied when Initialize
// runs.
func DeclareMetrics(module string, config ModuleConfig) {
	declaredMetrics.Store(module, config)
}

// Initialize activates the telemetry system. Only the first call takes
// effect. When initialization fails the emit helpers keep working as silent
// no-ops, so the application never crashes over a missing collector.
func Initialize(config Config, logger core.Logger) error {
	var initErr error
	initOnce.Do(func() {
		if logger == nil {
			logger = &core.NoOpLogger{}
		}

		registry, err := newRegistry(config, logger)
		if err != nil {
			initErr = err
			logger.Error("Telemetry initialization failed", map[string]interface{}{
				"error":    err.Error(),
				"endpoint": config.Endpoint,
			})
			return
		}

		declared := 0
		declaredMetrics.Range(func(key, value interface{}) bool {
			moduleConfig := value.(ModuleConfig)
			for _, metric := range moduleConfig.Metrics {
				registry.provider.declareKind(metric.Name, metric.Type)
			}
			declared++
			return true
		})

		globalRegistry.Store(registry)
		logger.Info("Telemetry system initialized", map[string]interface{}{
			"endpoint":         config.Endpoint,
			"declared_modules": declared,
		})
	})
	return initErr
}

func newRegistry(config Config, logger core.Logger) (*Registry, error) {
	if config.Endpoint == "" {
		config.Endpoint = "localhost:4317"
	}
	if config.ServiceName == "" {
		config.ServiceName = "aicore"
	}

	provider, err := NewOTelProvider(config.ServiceName, config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return &Registry{
		config:       config,
		provider:     provider,
		limiter:      NewCardinalityLimiter(config.CardinalityLimits, config.CardinalityLimit),
		logger:       logger,
		startTime:    time.Now(),
		errorLimiter: NewRateLimiter(time.Second),
	}, nil
}

func (r *Registry) emit(name string, value float64, labels map[string]string) {
	if r.limiter != nil {
		for key, val := range labels {
			if limited := r.limiter.CheckAndLimit(key, val); limited != val {
				labels[key] = limited
				telemetryDropped.Add(1)
			}
		}
	}
	if err := r.provider.recordMetric(name, value, labels); err != nil {
		telemetryErrors.Add(1)
		if r.errorLimiter.Allow() {
			r.logger.Warn("Metric emission failed", map[string]interface{}{
				"metric": name,
				"error":  err.Error(),
			})
		}
		return
	}
	r.emitted.Add(1)
}

// Emit records one metric sample. A no-op until Initialize succeeds.
func Emit(name string, value float64, labels ...string) {
	registry := globalRegistry.Load()
	if registry == nil {
		return
	}
	registry.(*Registry).emit(name, value, parseLabels(labels...))
}

// parseLabels converts "k1", "v1", "k2", "v2" into a map. A trailing key
// with no value is dropped.
func parseLabels(labels ...string) map[string]string {
	m := make(map[string]string, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		m[labels[i]] = labels[i+1]
	}
	return m
}

// GetTelemetryProvider returns the active provider as a core.Telemetry, or
// nil before initialization.
func GetTelemetryProvider() core.Telemetry {
	registry := globalRegistry.Load()
	if registry == nil {
		return nil
	}
	return registry.(*Registry).provider
}

// Shutdown flushes exporters and stops the provider.
func Shutdown(ctx context.Context) error {
	registry := globalRegistry.Load()
	if registry == nil {
		return nil
	}
	return registry.(*Registry).provider.Shutdown(ctx)
}

// Health reports the telemetry system's own counters.
func Health() map[string]int64 {
	stats := map[string]int64{
		"errors":  telemetryErrors.Load(),
		"dropped": telemetryDropped.Load(),
	}
	if registry := globalRegistry.Load(); registry != nil {
		stats["emitted"] = registry.(*Registry).emitted.Load()
	}
	return stats
}
