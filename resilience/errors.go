package resilience

import (
	"context"
	"errors"
)

// Sentinel errors for guarded handler calls.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrLimiterFull is returned when no background slot is available.
	ErrLimiterFull = errors.New("resilience: limiter at capacity")

	// ErrTimeout is returned when a guarded call exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// isCallerError reports errors caused by the caller rather than the backend.
// They neither trip the breaker nor trigger retries.
func isCallerError(err error) bool {
	return errors.Is(err, context.Canceled)
}
