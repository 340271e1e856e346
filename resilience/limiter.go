package resilience

import (
	"context"
	"sync/atomic"
)

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	// MaxConcurrent is the number of slots. Default: 4
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// Limiter bounds concurrent background work such as stale refreshes.
type Limiter struct {
	max      int
	sem      chan struct{}
	active   atomic.Int64
	peak     atomic.Int64
	rejected atomic.Int64
}

// NewLimiter creates a new limiter.
func NewLimiter(config LimiterConfig) *Limiter {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	return &Limiter{
		max: config.MaxConcurrent,
		sem: make(chan struct{}, config.MaxConcurrent),
	}
}

// TryAcquire takes a slot without waiting. It reports false when full.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		l.acquired()
		return true
	default:
		l.rejected.Add(1)
		return false
	}
}

// Acquire waits for a slot until ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		l.acquired()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) acquired() {
	n := l.active.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Release returns a slot taken by TryAcquire or Acquire.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

// Metrics returns current limiter statistics.
func (l *Limiter) Metrics() LimiterMetrics {
	active := int(l.active.Load())
	return LimiterMetrics{
		Active:        active,
		Peak:          int(l.peak.Load()),
		Available:     l.max - active,
		MaxConcurrent: l.max,
		Rejected:      l.rejected.Load(),
	}
}

// LimiterMetrics contains limiter statistics.
type LimiterMetrics struct {
	Active        int
	Peak          int
	Available     int
	MaxConcurrent int
	Rejected      int64
}
