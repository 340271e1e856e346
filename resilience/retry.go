package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays grow between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffConstant waits InitialDelay between every attempt.
	BackoffConstant
)

// RetryConfig configures retries of a handler call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 1 (no retries)
	MaxAttempts int `mapstructure:"max_attempts"`

	// InitialDelay is the delay before the second attempt.
	// Default: 20ms
	InitialDelay time.Duration `mapstructure:"initial_delay"`

	// MaxDelay caps the delay between attempts.
	// Default: 1s
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// Multiplier is the exponential growth factor. Default: 2.0
	Multiplier float64 `mapstructure:"multiplier"`

	// Strategy selects the backoff curve.
	Strategy BackoffStrategy `mapstructure:"-"`

	// Jitter adds up to 25% random delay to each wait.
	Jitter bool `mapstructure:"jitter"`

	// RetryIf reports whether err is worth another attempt.
	// Default: any error except cancellation, deadline and an open circuit.
	RetryIf func(err error) bool `mapstructure:"-"`

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration) `mapstructure:"-"`
}

// Retry re-runs failed handler calls with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry policy.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 20 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = defaultRetryIf
	}
	return &Retry{config: config}
}

func defaultRetryIf(err error) bool {
	return err != nil &&
		!isCallerError(err) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrTimeout) &&
		!errors.Is(err, ErrCircuitOpen)
}

// Execute runs op until it succeeds, a non-retryable error occurs, attempts
// run out or ctx is done.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.config.MaxAttempts || !r.config.RetryIf(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retry) delay(attempt int) time.Duration {
	d := r.config.InitialDelay
	if r.config.Strategy == BackoffExponential {
		d = time.Duration(float64(d) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	}
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}
	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
