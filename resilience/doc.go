// Package resilience guards calls into cache handlers.
//
// A Guard composes a CircuitBreaker, a Retry policy and a per-call timeout
// around every handler Get/Set/Expire call made by the cache store. When the
// breaker is open the store sees ErrCircuitOpen and treats the backend as
// unavailable, which degrades lookups to misses instead of blocking renders.
//
// A Limiter bounds how many stale-while-revalidate refreshes run in the
// background at once.
//
//	guard := resilience.NewGuard(resilience.GuardConfig{
//	    Timeout: 250 * time.Millisecond,
//	    Breaker: resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 10 * time.Second},
//	    Retry:   resilience.RetryConfig{MaxAttempts: 2},
//	})
//
//	err := guard.Do(ctx, func(ctx context.Context) error {
//	    return handler.Set(ctx, key, entry)
//	})
package resilience
