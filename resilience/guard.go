package resilience

import (
	"context"
	"errors"
	"time"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration        `mapstructure:"timeout"`
	Breaker CircuitBreakerConfig `mapstructure:"breaker"`
	Retry   RetryConfig          `mapstructure:"retry"`
}

// Guard wraps handler calls as breaker(retry(timeout(op))).
//
// Contract:
//   - Concurrency: Do is safe for concurrent use.
//   - Errors: ErrCircuitOpen when rejected, ErrTimeout when an attempt's
//     deadline fires, otherwise the op's last error unchanged.
type Guard struct {
	timeout time.Duration
	breaker *CircuitBreaker
	retry   *Retry
}

// NewGuard creates a Guard.
func NewGuard(config GuardConfig) *Guard {
	return &Guard{
		timeout: config.Timeout,
		breaker: NewCircuitBreaker(config.Breaker),
		retry:   NewRetry(config.Retry),
	}
}

// Do runs op through the breaker, retry policy and per-attempt timeout.
func (g *Guard) Do(ctx context.Context, op func(context.Context) error) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retry.Execute(ctx, func(ctx context.Context) error {
			return g.attempt(ctx, op)
		})
	})
}

func (g *Guard) attempt(ctx context.Context, op func(context.Context) error) error {
	if g.timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := op(actx)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrTimeout
	}
	return err
}

// Breaker exposes the guard's circuit breaker for health reporting.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}
