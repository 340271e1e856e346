package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestResultConstructors(t *testing.T) {
	err := errors.New("boom")
	tests := []struct {
		name   string
		result Result
		want   Status
		err    error
	}{
		{"healthy", Healthy("ok"), StatusHealthy, nil},
		{"degraded", Degraded("slow", err), StatusDegraded, err},
		{"unhealthy", Unhealthy("down", err), StatusUnhealthy, err},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.want {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.want)
			}
			if tt.result.Error != tt.err {
				t.Errorf("Error = %v, want %v", tt.result.Error, tt.err)
			}
			if tt.result.Timestamp.IsZero() {
				t.Error("Timestamp not set")
			}
		})
	}
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("probe", func(context.Context) Result {
		return Healthy("ok").WithDetails(map[string]any{"n": 1})
	})
	if c.Name() != "probe" {
		t.Errorf("Name() = %q, want %q", c.Name(), "probe")
	}
	r := c.Check(context.Background())
	if r.Status != StatusHealthy || r.Details["n"] != 1 {
		t.Errorf("Check() = %+v, want healthy with details", r)
	}
}
