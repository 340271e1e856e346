package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/resilience"
)

var errBackend = errors.New("backend down")

type downHandler struct{ *cache.MemoryHandler }

func (downHandler) Ping(context.Context) error { return errBackend }

func TestStoreChecker(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	tripped := func() *resilience.Guard {
		g := resilience.NewGuard(resilience.GuardConfig{Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: time.Minute,
			Now:          clock,
		}})
		_ = g.Do(context.Background(), func(context.Context) error { return errBackend })
		return g
	}

	down := downHandler{cache.NewMemoryHandler(cache.MemoryConfig{})}
	defer down.Close()

	tests := []struct {
		name    string
		cfg     func() (cache.StoreConfig, *resilience.Guard)
		advance time.Duration
		want    Status
	}{
		{
			name: "healthy",
			cfg:  func() (cache.StoreConfig, *resilience.Guard) { return cache.StoreConfig{}, nil },
			want: StatusHealthy,
		},
		{
			name: "ping fails",
			cfg: func() (cache.StoreConfig, *resilience.Guard) {
				return cache.StoreConfig{Handlers: map[cache.Kind]cache.Handler{cache.KindPublic: down}}, nil
			},
			want: StatusUnhealthy,
		},
		{
			name: "circuit open",
			cfg: func() (cache.StoreConfig, *resilience.Guard) {
				g := tripped()
				return cache.StoreConfig{Guard: g}, g
			},
			want: StatusUnhealthy,
		},
		{
			name: "circuit half-open",
			cfg: func() (cache.StoreConfig, *resilience.Guard) {
				g := tripped()
				return cache.StoreConfig{Guard: g}, g
			},
			advance: 2 * time.Minute,
			want:    StatusDegraded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = time.Unix(1_700_000_000, 0)
			cfg, g := tt.cfg()
			store := cache.NewStore(cfg)
			now = now.Add(tt.advance)

			var breaker *resilience.CircuitBreaker
			if g != nil {
				breaker = g.Breaker()
			}
			r := NewStoreChecker("store", store, breaker).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Check() = %v (%s: %v), want %v", r.Status, r.Message, r.Error, tt.want)
			}
			if _, ok := r.Details["entries"]; !ok {
				t.Errorf("Details = %v, want entry counts", r.Details)
			}
		})
	}
}
