package health

import (
	"context"
	"errors"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/resilience"
)

// StoreChecker reports the health of a cache store.
//
// A store whose handlers fail a ping, or whose circuit is open, is unhealthy.
// A store that had to rebuild its tag index, is rebuilding it now, or is
// probing a half-open circuit is degraded.
type StoreChecker struct {
	name    string
	store   *cache.Store
	breaker *resilience.CircuitBreaker
}

// NewStoreChecker creates a checker for store. breaker may be nil.
func NewStoreChecker(name string, store *cache.Store, breaker *resilience.CircuitBreaker) *StoreChecker {
	return &StoreChecker{name: name, store: store, breaker: breaker}
}

func (c *StoreChecker) Name() string { return c.name }

func (c *StoreChecker) Check(ctx context.Context) Result {
	st := c.store.Stats()
	details := map[string]any{
		"entries":    st.Entries,
		"tags":       st.Tags,
		"refreshing": st.Refreshing,
	}
	if c.breaker != nil {
		details["circuit"] = c.breaker.State().String()
	}

	if err := c.store.Ping(ctx); err != nil {
		return Unhealthy("store unavailable", err).WithDetails(details)
	}
	if err := c.store.CheckIndex(ctx); err != nil {
		if errors.Is(err, cache.ErrTagIndexCorrupt) {
			return Degraded("tag index rebuilt", err).WithDetails(details)
		}
		return Unhealthy("tag index check failed", err).WithDetails(details)
	}
	if st.Rebuilding {
		return Degraded("tag index rebuilding", nil).WithDetails(details)
	}
	if c.breaker != nil && c.breaker.State() == resilience.StateHalfOpen {
		return Degraded("circuit half-open", nil).WithDetails(details)
	}
	return Healthy("store ok").WithDetails(details)
}
