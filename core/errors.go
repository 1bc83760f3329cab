package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Primary-path errors
	ErrTimeout            = errors.New("operation timeout")
	ErrTransientBackend   = errors.New("transient backend error")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrServiceUnhealthy   = errors.New("service unhealthy")

	// Fallback errors
	ErrNoCacheAvailable     = errors.New("no cached result available")
	ErrNoAlternativeBackend = errors.New("no alternative backend configured")
	ErrNoManualHandler      = errors.New("no manual fallback handler supplied")
	ErrFallbackExhausted    = errors.New("fallback exhausted")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// State errors
	ErrTerminalState    = errors.New("operation already in terminal state")
	ErrAlreadyStarted   = errors.New("already started")
	ErrContextCanceled  = errors.New("context canceled")
	ErrCacheCorruption  = errors.New("cache entry corrupted")
	ErrConnectionFailed = errors.New("connection failed")
)

// Reason codes attached to fallback dispatches and health transitions.
// They are stable identifiers; human-readable text comes from ReasonMessage.
const (
	ReasonTimeout          = "timeout"
	ReasonBackendError     = "backend_error"
	ReasonServiceUnhealthy = "service_unhealthy"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonNoCache          = "no_cache_available"
	ReasonNoAlternative    = "no_alternative_backend"
	ReasonNoManualHandler  = "no_manual_handler"
	ReasonManualRequested  = "manual_requested"
)

// reasonMessages maps reason codes to text suitable for direct display.
var reasonMessages = map[string]string{
	ReasonTimeout:          "The AI service took too long to respond.",
	ReasonBackendError:     "The AI service returned an error.",
	ReasonServiceUnhealthy: "The AI service is temporarily unavailable.",
	ReasonRetriesExhausted: "The AI service failed repeatedly.",
	ReasonNoCache:          "No previous result was available to reuse.",
	ReasonNoAlternative:    "No alternative AI service is configured.",
	ReasonNoManualHandler:  "No manual completion path is configured.",
	ReasonManualRequested:  "Manual completion was requested.",
}

// ReasonMessage resolves a reason code to a human-readable message.
// Unknown codes fall back to a generic message rather than leaking the code.
func ReasonMessage(reason string) string {
	if msg, ok := reasonMessages[reason]; ok {
		return msg
	}
	return "The AI operation could not be completed automatically."
}

// OperationError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type OperationError struct {
	Op      string // Operation that failed (e.g., "cache.Get", "retry.Execute")
	Kind    string // Error kind (e.g., "cache", "retry", "fallback")
	ID      string // Optional operation id involved
	Reason  string // Reason code, when one applies
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *OperationError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates a new OperationError
func NewOperationError(op, kind string, err error) *OperationError {
	return &OperationError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// FallbackExhaustedError is the single terminal failure that crosses the
// orchestrator boundary. It carries both the original primary-path failure
// and the fallback failure, plus a display-ready message.
type FallbackExhaustedError struct {
	OperationID   string
	PrimaryReason string
	PrimaryErr    error
	FallbackErr   error
}

func (e *FallbackExhaustedError) Error() string {
	return fmt.Sprintf("operation %s failed: primary %s (%v); fallback: %v",
		e.OperationID, e.PrimaryReason, e.PrimaryErr, e.FallbackErr)
}

// Unwrap exposes both causes to errors.Is/As.
func (e *FallbackExhaustedError) Unwrap() []error {
	return []error{ErrFallbackExhausted, e.PrimaryErr, e.FallbackErr}
}

// DisplayMessage returns the human-readable reason string for the caller's UI.
func (e *FallbackExhaustedError) DisplayMessage() string {
	return ReasonMessage(e.PrimaryReason)
}

// IsRetryable checks if an error is retryable.
// Retryable errors are the primary call's timeouts and transient failures;
// everything a primary function throws is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsConfigurationError(err) || IsStateError(err) {
		return false
	}
	return !errors.Is(err, ErrFallbackExhausted)
}

// IsTimeout checks if an error represents an attempt deadline being exceeded
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsStateError checks if an error is related to invalid state transitions
func IsStateError(err error) bool {
	return errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrAlreadyStarted)
}
