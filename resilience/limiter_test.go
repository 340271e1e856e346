package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_TryAcquire(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 2})

	if !l.TryAcquire() || !l.TryAcquire() {
		t.Fatal("expected two slots")
	}
	if l.TryAcquire() {
		t.Fatal("expected third TryAcquire to fail")
	}

	m := l.Metrics()
	if m.Active != 2 || m.Available != 0 || m.Rejected != 1 || m.Peak != 2 {
		t.Errorf("Metrics() = %+v", m)
	}

	l.Release()
	if !l.TryAcquire() {
		t.Error("expected slot after Release")
	}
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	l := NewLimiter(LimiterConfig{MaxConcurrent: 1})
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() = %v, want deadline exceeded", err)
	}
}

func TestLimiter_ReleaseWithoutAcquire(t *testing.T) {
	l := NewLimiter(LimiterConfig{})
	l.Release()
	if m := l.Metrics(); m.Active != 0 || m.MaxConcurrent != 4 {
		t.Errorf("Metrics() = %+v", m)
	}
}
