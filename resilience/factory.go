package resilience

import (
	"context"
	"fmt"

	"github.com/studioloom/aicore/cache"
	"github.com/studioloom/aicore/core"
	"github.com/studioloom/aicore/telemetry"
)

// System is the fully wired resilience pipeline. Components are exported so
// callers can subscribe to events, inspect health, or drive the orchestrator
// directly.
type System struct {
	Config       *core.Config
	Logger       core.Logger
	Notifier     *Notifier
	Cache        *cache.ContextualCache
	Health       *HealthTracker
	Retry        *RetryExecutor
	Dispatcher   *Dispatcher
	Orchestrator *Orchestrator

	states core.StateStore
}

// SystemOption customizes the wired system.
type SystemOption func(*systemOptions)

type systemOptions struct {
	logger    core.Logger
	manual    ManualFunc
	altName   string
	altFn     PrimaryFunc
}

// WithSystemLogger overrides the config-derived logger.
func WithSystemLogger(logger core.Logger) SystemOption {
	return func(o *systemOptions) { o.logger = logger }
}

// WithSystemManualHandler installs the manual takeover handler.
func WithSystemManualHandler(fn ManualFunc) SystemOption {
	return func(o *systemOptions) { o.manual = fn }
}

// WithSystemAlternateBackend installs the secondary backend.
func WithSystemAlternateBackend(name string, fn PrimaryFunc) SystemOption {
	return func(o *systemOptions) { o.altFn = fn; o.altName = name }
}

// NewSystem builds every component from configuration and wires them
// together. State preservation uses Redis when configured and the in-memory
// store otherwise.
func NewSystem(cfg *core.Config, opts ...SystemOption) (*System, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options systemOptions
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = core.NewProductionLogger(cfg.Logging, cfg.ServiceName)
	}

	metrics := NewTelemetryMetrics()
	notifier := NewNotifier(componentLogger(logger, "notifier"))

	states, err := newStateStore(cfg, componentLogger(logger, "state"))
	if err != nil {
		return nil, err
	}

	contextCache := cache.NewContextualCache(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithSimilarityMinimum(cfg.Cache.SimilarityMinimum),
		cache.WithContextualMatching(cfg.Cache.ContextualMatching),
		cache.WithLogger(componentLogger(logger, "cache")),
	)

	health := NewHealthTracker(
		WithRecoveryWindow(cfg.Health.RecoveryWindow),
		WithSweepInterval(cfg.Health.SweepInterval),
		WithHealthLogger(componentLogger(logger, "health")),
		WithHealthNotifier(notifier),
		WithHealthMetrics(metrics),
	)

	retry := NewRetryExecutor(health,
		WithMaxRetries(cfg.Retry.MaxRetries),
		WithAttemptTimeout(cfg.Retry.AttemptTimeout),
		WithRetryDelay(cfg.Retry.RetryDelay),
		WithRetryLogger(componentLogger(logger, "retry")),
		WithRetryMetrics(metrics),
	)

	dispatcherOpts := []DispatcherOption{
		WithFallbackCache(contextCache),
		WithStateStore(states, cfg.State.Prefix, cfg.State.TTL),
		WithAlternateTimeout(cfg.Retry.AttemptTimeout),
		WithDispatcherNotifier(notifier),
		WithDispatcherLogger(componentLogger(logger, "fallback")),
		WithDispatcherMetrics(metrics),
	}
	if options.manual != nil {
		dispatcherOpts = append(dispatcherOpts, WithManualHandler(options.manual))
	}
	if options.altFn != nil {
		dispatcherOpts = append(dispatcherOpts, WithAlternateBackend(options.altName, options.altFn))
	}
	dispatcher := NewDispatcher(dispatcherOpts...)

	orchestrator := NewOrchestrator(contextCache, health, retry, dispatcher,
		WithOrchestratorLogger(componentLogger(logger, "orchestrator")),
		WithOrchestratorMetrics(metrics),
		WithOrchestratorNotifier(notifier),
	)

	return &System{
		Config:       cfg,
		Logger:       logger,
		Notifier:     notifier,
		Cache:        contextCache,
		Health:       health,
		Retry:        retry,
		Dispatcher:   dispatcher,
		Orchestrator: orchestrator,
		states:       states,
	}, nil
}

// Start initializes telemetry when enabled and launches the health sweep.
// Background work stops when ctx is canceled.
func (s *System) Start(ctx context.Context) error {
	if s.Config.Telemetry.Enabled {
		err := telemetry.Initialize(telemetry.Config{
			Enabled:     true,
			ServiceName: s.Config.ServiceName,
			Endpoint:    s.Config.Telemetry.Endpoint,
		}, componentLogger(s.Logger, "telemetry"))
		if err != nil {
			// Metrics stay no-ops; the pipeline itself is unaffected.
			s.Logger.Warn("Continuing without telemetry", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	s.Health.StartSweep(ctx)
	return nil
}

// Shutdown releases external resources.
func (s *System) Shutdown(ctx context.Context) error {
	var firstErr error
	if closer, ok := s.states.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if err := telemetry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func newStateStore(cfg *core.Config, logger core.Logger) (core.StateStore, error) {
	switch cfg.State.Provider {
	case "redis":
		// The dispatcher already namespaces keys with cfg.State.Prefix,
		// so the store adds none of its own.
		store, err := core.NewRedisStateStore(cfg.State.RedisURL,
			core.WithStateLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("redis state store: %w", err)
		}
		return store, nil
	case "", "inmemory":
		store := core.NewMemoryStateStore()
		store.SetLogger(logger)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown state provider %q", core.ErrInvalidConfiguration, cfg.State.Provider)
	}
}

func componentLogger(logger core.Logger, component string) core.Logger {
	if aware, ok := logger.(core.ComponentAwareLogger); ok {
		return aware.WithComponent(component)
	}
	return logger
}
