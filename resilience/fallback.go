package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/studioloom/aicore/cache"
	"github.com/studioloom/aicore/core"
)

// Strategy selects how an operation degrades when the primary backend fails.
type Strategy int

const (
	// StrategyRetryThenManual hands the operation to the manual handler
	// after the retry budget is spent. This is the default.
	StrategyRetryThenManual Strategy = iota

	// StrategyCachedResult serves a cached response or fails.
	StrategyCachedResult

	// StrategyAlternativeBackend runs the configured secondary backend.
	StrategyAlternativeBackend

	// StrategyDegradedFunction returns a reduced-capability placeholder
	// result, clearly marked as degraded.
	StrategyDegradedFunction

	// StrategyImmediateManual skips everything and goes straight to the
	// manual handler.
	StrategyImmediateManual
)

var strategyNames = map[Strategy]string{
	StrategyRetryThenManual:    "retry_then_manual",
	StrategyCachedResult:       "cached_result",
	StrategyAlternativeBackend: "alternative_ai",
	StrategyDegradedFunction:   "degraded_function",
	StrategyImmediateManual:    "immediate_manual",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy maps a strategy name to its value. Unknown names fall back to
// the default strategy.
func ParseStrategy(name string) Strategy {
	for s, n := range strategyNames {
		if n == name {
			return s
		}
	}
	return StrategyRetryThenManual
}

// ManualRequest is everything a human operator needs to take over a failed
// operation.
type ManualRequest struct {
	OperationID  string                 `json:"operationId"`
	Reason       string                 `json:"reason"`
	Message      string                 `json:"message"`
	Context      map[string]interface{} `json:"context,omitempty"`
	PreservedKey string                 `json:"preservedKey,omitempty"`
}

// ManualFunc receives operations that could not be completed automatically.
type ManualFunc func(ctx context.Context, req ManualRequest) (interface{}, error)

// DegradedResult is the placeholder returned by the degraded-function
// strategy. Callers must check Degraded before treating the value as real
// output.
type DegradedResult struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// FallbackRecord is one entry in the dispatcher's audit ring.
type FallbackRecord struct {
	OperationID string    `json:"operationId"`
	Strategy    string    `json:"strategy"`
	Reason      string    `json:"reason"`
	Succeeded   bool      `json:"succeeded"`
	Timestamp   time.Time `json:"timestamp"`
}

// DispatchResult carries the outcome of a successful fallback.
type DispatchResult struct {
	Value          interface{}
	Strategy       Strategy
	CacheKind      cache.MatchKind
	ManualOverride bool
}

const fallbackRecordLimit = 512

// pendingState is the JSON document preserved for operations handed to a
// human, keyed by operation id in the state store.
type pendingState struct {
	OperationID string                 `json:"operationId"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Reason      string                 `json:"reason"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Dispatcher resolves failed operations according to their fallback strategy.
// It keeps a bounded audit ring of every dispatch so operators can see what
// degraded and why.
type Dispatcher struct {
	cache       *cache.ContextualCache
	states      core.StateStore
	statePrefix string
	stateTTL    time.Duration

	alternate        PrimaryFunc
	alternateBackend string
	alternateTimeout time.Duration

	manual   ManualFunc
	notifier *Notifier
	logger   core.Logger
	metrics  MetricsCollector

	mu        sync.Mutex
	records   []FallbackRecord
	reasons   map[string]int64
	total     int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFallbackCache sets the cache used by the cached-result strategy.
func WithFallbackCache(c *cache.ContextualCache) DispatcherOption {
	return func(d *Dispatcher) { d.cache = c }
}

// WithAlternateBackend sets the secondary backend used by the alternative
// strategy.
func WithAlternateBackend(name string, fn PrimaryFunc) DispatcherOption {
	return func(d *Dispatcher) {
		d.alternateBackend = name
		d.alternate = fn
	}
}

// WithAlternateTimeout bounds the single alternative-backend call.
func WithAlternateTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.alternateTimeout = timeout
		}
	}
}

// WithManualHandler sets the handler that receives manual takeovers.
func WithManualHandler(fn ManualFunc) DispatcherOption {
	return func(d *Dispatcher) { d.manual = fn }
}

// WithStateStore sets the store used to preserve state for manual takeovers.
func WithStateStore(store core.StateStore, prefix string, ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.states = store
		if prefix != "" {
			d.statePrefix = prefix
		}
		if ttl > 0 {
			d.stateTTL = ttl
		}
	}
}

// WithDispatcherNotifier sets the notifier.
func WithDispatcherNotifier(n *Notifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherMetrics sets the metrics collector.
func WithDispatcherMetrics(m MetricsCollector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher. Every hook is optional; strategies
// whose hook is missing fail with a classified error instead of panicking.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		statePrefix:      core.DefaultStatePrefix,
		stateTTL:         core.DefaultStateTTL,
		alternateTimeout: core.DefaultAttemptTimeout,
		logger:           &core.NoOpLogger{},
		reasons:          make(map[string]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics = ensureMetrics(d.metrics)
	return d
}

// Dispatch resolves a failed operation with its configured strategy. The
// reason is one of the package's reason codes and reaches the operator both
// in notifications and in the manual request's human-readable message.
func (d *Dispatcher) Dispatch(ctx context.Context, op *Operation, reason string) (*DispatchResult, error) {
	strategy := op.Options.Strategy
	d.metrics.RecordFallback(strategy.String(), reason)
	d.emit(EventFallbackTriggered, op, reason, map[string]interface{}{
		"strategy": strategy.String(),
	})
	d.logger.Info("Dispatching fallback", map[string]interface{}{
		"operation":    "fallback_dispatch",
		"operation_id": op.ID,
		"strategy":     strategy.String(),
		"reason":       reason,
	})

	result, err := d.run(ctx, op, strategy, reason)
	d.record(op.ID, strategy, reason, err == nil)

	if err != nil {
		d.emit(EventFallbackFailed, op, reason, map[string]interface{}{
			"strategy": strategy.String(),
			"error":    err.Error(),
		})
		return nil, err
	}

	d.emit(EventFallbackSucceeded, op, reason, map[string]interface{}{
		"strategy": strategy.String(),
	})
	if result.ManualOverride {
		d.emit(EventManualOverride, op, reason, nil)
	}
	return result, nil
}

func (d *Dispatcher) run(ctx context.Context, op *Operation, strategy Strategy, reason string) (*DispatchResult, error) {
	switch strategy {
	case StrategyCachedResult:
		return d.fromCache(op, strategy)
	case StrategyAlternativeBackend:
		return d.fromAlternate(ctx, op, strategy)
	case StrategyDegradedFunction:
		return &DispatchResult{
			Strategy: strategy,
			Value: &DegradedResult{
				Degraded: true,
				Reason:   reason,
				Message:  core.ReasonMessage(reason),
			},
		}, nil
	case StrategyImmediateManual, StrategyRetryThenManual:
		return d.toManual(ctx, op, strategy, reason)
	default:
		return d.toManual(ctx, op, StrategyRetryThenManual, reason)
	}
}

func (d *Dispatcher) fromCache(op *Operation, strategy Strategy) (*DispatchResult, error) {
	if d.cache == nil {
		return nil, fmt.Errorf("operation %s: %w", op.ID, core.ErrNoCacheAvailable)
	}
	match, ok := d.cache.Get(op.Payload.Prompt, op.Payload.Ancestry, op.Payload.Focus)
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", op.ID, core.ErrNoCacheAvailable)
	}
	return &DispatchResult{
		Value:     match.Entry.Response,
		Strategy:  strategy,
		CacheKind: match.Kind,
	}, nil
}

func (d *Dispatcher) fromAlternate(ctx context.Context, op *Operation, strategy Strategy) (*DispatchResult, error) {
	if d.alternate == nil {
		return nil, fmt.Errorf("operation %s: %w", op.ID, core.ErrNoAlternativeBackend)
	}

	altCtx, cancel := context.WithTimeout(ctx, d.alternateTimeout)
	defer cancel()

	value, err := d.alternate(altCtx)
	if err != nil {
		return nil, fmt.Errorf("alternative backend %s: %w", d.alternateBackend, err)
	}
	return &DispatchResult{Value: value, Strategy: strategy}, nil
}

func (d *Dispatcher) toManual(ctx context.Context, op *Operation, strategy Strategy, reason string) (*DispatchResult, error) {
	if d.manual == nil {
		return nil, fmt.Errorf("operation %s: %w", op.ID, core.ErrNoManualHandler)
	}

	req := ManualRequest{
		OperationID: op.ID,
		Reason:      reason,
		Message:     core.ReasonMessage(reason),
		Context:     op.Options.Context,
	}

	if op.Options.PreserveState && d.states != nil {
		key, err := d.preserve(ctx, op, reason)
		if err != nil {
			// Preservation is best effort; the takeover proceeds
			// without it.
			d.logger.Warn("Failed to preserve operation state", map[string]interface{}{
				"operation":    "state_preserve",
				"operation_id": op.ID,
				"error":        err.Error(),
			})
		} else {
			req.PreservedKey = key
		}
	}

	value, err := d.manual(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("manual handler for operation %s: %w", op.ID, err)
	}
	return &DispatchResult{Value: value, Strategy: strategy, ManualOverride: true}, nil
}

func (d *Dispatcher) preserve(ctx context.Context, op *Operation, reason string) (string, error) {
	doc := pendingState{
		OperationID: op.ID,
		Context:     op.Options.Context,
		Reason:      reason,
		Timestamp:   time.Now(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	key := d.statePrefix + op.ID
	if err := d.states.Set(ctx, key, string(data), d.stateTTL); err != nil {
		return "", err
	}
	return key, nil
}

// record appends to the audit ring, dropping the oldest entry past the cap.
func (d *Dispatcher) record(operationID string, strategy Strategy, reason string, succeeded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.total++
	d.reasons[reason]++
	d.records = append(d.records, FallbackRecord{
		OperationID: operationID,
		Strategy:    strategy.String(),
		Reason:      reason,
		Succeeded:   succeeded,
		Timestamp:   time.Now(),
	})
	if len(d.records) > fallbackRecordLimit {
		d.records = d.records[len(d.records)-fallbackRecordLimit:]
	}
}

// Records returns a copy of the audit ring, oldest first.
func (d *Dispatcher) Records() []FallbackRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FallbackRecord, len(d.records))
	copy(out, d.records)
	return out
}

// RecentCount returns how many fallbacks happened within the window.
func (d *Dispatcher) RecentCount(window time.Duration) int {
	cutoff := time.Now().Add(-window)
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for i := len(d.records) - 1; i >= 0; i-- {
		if d.records[i].Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	return count
}

// TotalCount returns the number of dispatches since construction, including
// entries already rotated out of the ring.
func (d *Dispatcher) TotalCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// ReasonHistogram returns a copy of the per-reason dispatch counts.
func (d *Dispatcher) ReasonHistogram() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int64, len(d.reasons))
	for reason, count := range d.reasons {
		out[reason] = count
	}
	return out
}

func (d *Dispatcher) emit(eventType EventType, op *Operation, reason string, fields map[string]interface{}) {
	if d.notifier == nil {
		return
	}
	d.notifier.Emit(Event{
		Type:        eventType,
		OperationID: op.ID,
		Backend:     op.Options.Backend,
		Reason:      reason,
		Fields:      fields,
	})
}
