package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuard_RetriesThenSucceeds(t *testing.T) {
	g := NewGuard(GuardConfig{Retry: RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}})
	calls := 0

	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil || calls != 2 {
		t.Fatalf("Do() = %v after %d calls, want nil after 2", err, calls)
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("breaker = %v, want closed", g.Breaker().State())
	}
}

func TestGuard_TimeoutMapsToErrTimeout(t *testing.T) {
	g := NewGuard(GuardConfig{Timeout: 5 * time.Millisecond})

	err := g.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Do() = %v, want ErrTimeout", err)
	}
}

func TestGuard_CallerCancelIsNotTimeout(t *testing.T) {
	g := NewGuard(GuardConfig{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Do(ctx, func(ctx context.Context) error { return ctx.Err() })

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() = %v, want context.Canceled", err)
	}
	if g.Breaker().Metrics().Failures != 0 {
		t.Error("caller cancellation counted as backend failure")
	}
}

func TestGuard_OpenCircuitShortCircuits(t *testing.T) {
	g := NewGuard(GuardConfig{Breaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}})
	_ = g.Do(context.Background(), fail(errors.New("down")))

	called := false
	err := g.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("Do() = %v, called = %v; want ErrCircuitOpen without call", err, called)
	}
}
