package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studioloom/aicore/cache"
	"github.com/studioloom/aicore/core"
)

// OpState is an operation's position in its lifecycle.
type OpState string

const (
	StatePending        OpState = "pending"
	StateInProgress     OpState = "in_progress"
	StateFallbackActive OpState = "fallback_active"
	StateManualOverride OpState = "manual_override"
	StateSuccess        OpState = "success"
	StateFailed         OpState = "failed"
)

// validTransitions encodes the lifecycle. Success and failed are terminal;
// once either is reached every further transition is rejected, so a late
// primary response can never overwrite a fallback outcome.
var validTransitions = map[OpState][]OpState{
	StatePending:        {StateInProgress},
	StateInProgress:     {StateSuccess, StateFallbackActive, StateFailed},
	StateFallbackActive: {StateSuccess, StateManualOverride, StateFailed},
	StateManualOverride: {StateSuccess},
}

// Payload is the AI request an operation carries.
type Payload struct {
	Prompt   string
	Ancestry []cache.Exchange
	Focus    string
}

// Options tune a single operation. Timeout bounds each primary attempt and
// MaxRetries caps the attempt budget; zero values defer to the executor-wide
// configuration.
type Options struct {
	Backend       string
	Strategy      Strategy
	Timeout       time.Duration
	MaxRetries    int
	PreserveState bool
	Context       map[string]interface{}
}

// Operation is one tracked unit of AI work.
type Operation struct {
	ID      string
	Payload Payload
	Options Options

	mu        sync.Mutex
	state     OpState
	startedAt time.Time
}

// NewOperation creates an operation in the pending state with a fresh id.
func NewOperation(payload Payload, options Options) *Operation {
	if options.Backend == "" {
		options.Backend = core.DefaultBackend
	}
	return &Operation{
		ID:      uuid.New().String(),
		Payload: payload,
		Options: options,
		state:   StatePending,
	}
}

// State returns the current lifecycle state.
func (o *Operation) State() OpState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// transition moves the operation to a new state, rejecting anything the
// lifecycle does not allow.
func (o *Operation) transition(to OpState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, allowed := range validTransitions[o.state] {
		if allowed == to {
			o.state = to
			return nil
		}
	}
	if o.state == StateSuccess || o.state == StateFailed {
		return fmt.Errorf("%w: operation %s is %s", core.ErrTerminalState, o.ID, o.state)
	}
	return fmt.Errorf("invalid transition for operation %s: %s -> %s", o.ID, o.state, to)
}

// Result is the outcome of an orchestrated operation.
type Result struct {
	OperationID    string
	Value          interface{}
	Attempts       int
	CacheHit       cache.MatchKind
	FallbackUsed   bool
	Strategy       Strategy
	ManualOverride bool
	Duration       time.Duration
}

// Stats is a point-in-time view of the orchestrator, suitable for dashboards.
type Stats struct {
	TotalOperations  int64                    `json:"total_operations"`
	ActiveOperations int64                    `json:"active_operations"`
	TotalFallbacks   int64                    `json:"total_fallbacks"`
	RecentFallbacks  int                      `json:"recent_fallbacks_24h"`
	FallbackReasons  map[string]int64         `json:"fallback_reasons"`
	BackendHealth    map[string]ServiceHealth `json:"backend_health"`
	CacheSize        int                      `json:"cache_size"`
	CacheStats       map[string]interface{}   `json:"cache_stats,omitempty"`
}

const recentFallbackWindow = 24 * time.Hour

// Orchestrator runs the full operation pipeline: cache lookup, gated retries
// against the primary backend, and strategy-driven fallback.
type Orchestrator struct {
	cache      *cache.ContextualCache
	health     *HealthTracker
	retry      *RetryExecutor
	dispatcher *Dispatcher
	notifier   *Notifier
	logger     core.Logger
	metrics    MetricsCollector

	activeOps int64
	totalOps  int64
	statsMu   sync.Mutex
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger core.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOrchestratorMetrics sets the metrics collector.
func WithOrchestratorMetrics(m MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithOrchestratorNotifier sets the notifier.
func WithOrchestratorNotifier(n *Notifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

// NewOrchestrator wires the pipeline together. Cache may be nil to disable
// result reuse entirely.
func NewOrchestrator(c *cache.ContextualCache, health *HealthTracker, retry *RetryExecutor, dispatcher *Dispatcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cache:      c,
		health:     health,
		retry:      retry,
		dispatcher: dispatcher,
		logger:     &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = ensureMetrics(o.metrics)
	return o
}

// Execute runs one operation to a terminal state. On primary success the
// response is cached for later reuse. On primary failure the fallback
// strategy decides the outcome; only when that also fails does Execute
// return an error, and then it is a FallbackExhaustedError carrying both
// causes.
func (o *Orchestrator) Execute(ctx context.Context, op *Operation, fn PrimaryFunc) (*Result, error) {
	start := time.Now()

	if err := op.transition(StateInProgress); err != nil {
		return nil, err
	}

	o.statsMu.Lock()
	o.totalOps++
	o.activeOps++
	o.statsMu.Unlock()
	defer func() {
		o.statsMu.Lock()
		o.activeOps--
		o.statsMu.Unlock()
	}()

	o.emit(EventOperationStarted, op, "", nil)
	o.logger.Debug("Operation started", map[string]interface{}{
		"operation_id": op.ID,
		"backend":      op.Options.Backend,
		"strategy":     op.Options.Strategy.String(),
	})

	// Cache first. A reusable response short-circuits the backend
	// entirely.
	if o.cache != nil {
		if match, ok := o.cache.Get(op.Payload.Prompt, op.Payload.Ancestry, op.Payload.Focus); ok {
			o.metrics.RecordCacheLookup(string(match.Kind))
			return o.succeed(op, &Result{
				OperationID: op.ID,
				Value:       match.Entry.Response,
				CacheHit:    match.Kind,
				Duration:    time.Since(start),
			})
		}
		o.metrics.RecordCacheLookup("miss")
	}

	value, attempts, err := o.retry.ExecuteWith(ctx, op.Options.Backend, fn, Budget{
		MaxRetries:     op.Options.MaxRetries,
		AttemptTimeout: op.Options.Timeout,
	})
	if err == nil {
		if o.cache != nil {
			o.cache.Put(op.Payload.Prompt, op.Payload.Ancestry, op.Payload.Focus, value)
		}
		o.metrics.RecordOutcome(op.Options.Backend, "success", durationMs(start))
		return o.succeed(op, &Result{
			OperationID: op.ID,
			Value:       value,
			Attempts:    attempts,
			Duration:    time.Since(start),
		})
	}

	if errors.Is(err, core.ErrContextCanceled) || errors.Is(err, context.Canceled) {
		o.fail(op, "")
		return nil, err
	}

	reason := classifyFailure(err)
	if err := op.transition(StateFallbackActive); err != nil {
		return nil, err
	}

	dispatched, dispatchErr := o.dispatcher.Dispatch(ctx, op, reason)
	if dispatchErr != nil {
		o.fail(op, reason)
		o.metrics.RecordOutcome(op.Options.Backend, "failed", durationMs(start))
		return nil, &core.FallbackExhaustedError{
			OperationID:   op.ID,
			PrimaryReason: reason,
			PrimaryErr:    err,
			FallbackErr:   dispatchErr,
		}
	}

	if dispatched.ManualOverride {
		if err := op.transition(StateManualOverride); err != nil {
			return nil, err
		}
	}
	o.metrics.RecordOutcome(op.Options.Backend, "fallback", durationMs(start))
	return o.succeed(op, &Result{
		OperationID:    op.ID,
		Value:          dispatched.Value,
		Attempts:       attempts,
		FallbackUsed:   true,
		Strategy:       dispatched.Strategy,
		CacheHit:       dispatched.CacheKind,
		ManualOverride: dispatched.ManualOverride,
		Duration:       time.Since(start),
	})
}

// Run is the one-call convenience wrapper: it builds the operation, executes
// it, and returns the result.
func (o *Orchestrator) Run(ctx context.Context, payload Payload, options Options, fn PrimaryFunc) (*Result, error) {
	return o.Execute(ctx, NewOperation(payload, options), fn)
}

func (o *Orchestrator) succeed(op *Operation, result *Result) (*Result, error) {
	if err := op.transition(StateSuccess); err != nil {
		return nil, err
	}
	o.emit(EventOperationCompleted, op, "", map[string]interface{}{
		"status":        "success",
		"fallback_used": result.FallbackUsed,
		"cache_hit":     string(result.CacheHit),
		"attempts":      result.Attempts,
	})
	return result, nil
}

func (o *Orchestrator) fail(op *Operation, reason string) {
	if err := op.transition(StateFailed); err != nil {
		o.logger.Error("Failed to mark operation failed", map[string]interface{}{
			"operation_id": op.ID,
			"error":        err.Error(),
		})
		return
	}
	o.emit(EventOperationCompleted, op, reason, map[string]interface{}{
		"status": "failed",
	})
}

// Stats assembles the dashboard view across all components.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	total := o.totalOps
	active := o.activeOps
	o.statsMu.Unlock()

	stats := Stats{
		TotalOperations:  total,
		ActiveOperations: active,
		TotalFallbacks:   o.dispatcher.TotalCount(),
		RecentFallbacks:  o.dispatcher.RecentCount(recentFallbackWindow),
		FallbackReasons:  o.dispatcher.ReasonHistogram(),
		BackendHealth:    o.health.Snapshot(),
	}
	if o.cache != nil {
		stats.CacheSize = o.cache.Size()
		stats.CacheStats = o.cache.Stats()
	}
	return stats
}

func (o *Orchestrator) emit(eventType EventType, op *Operation, reason string, fields map[string]interface{}) {
	if o.notifier == nil {
		return
	}
	o.notifier.Emit(Event{
		Type:        eventType,
		OperationID: op.ID,
		Backend:     op.Options.Backend,
		Reason:      reason,
		Fields:      fields,
	})
}

func durationMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
