package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_SuccessPath(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	mw := NewMiddleware(NewTracer(tp.Tracer("test")), metrics, nil)

	var sawSpan bool
	err = mw.Run(context.Background(), OpMeta{Op: "render", Route: "/blog"}, func(ctx context.Context) error {
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sawSpan {
		t.Error("expected span context inside wrapped function")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "rendercache.render" {
		t.Errorf("span name = %q, want %q", spans[0].Name(), "rendercache.render")
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", spans[0].Status().Code)
	}

	rm := collect(t, reader)
	if got := sumOf(t, findMetric(rm, "rendercache.op.total")); got != 1 {
		t.Errorf("op.total = %d, want 1", got)
	}
}

func TestMiddleware_ErrorPath(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	var buf bytes.Buffer

	mw := NewMiddleware(NewTracer(tp.Tracer("test")), nil, NewLoggerWithWriter("info", &buf))
	wantErr := errors.New("render failed")

	err := mw.Run(context.Background(), OpMeta{Op: "fill", Target: "/a/b"}, func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %d", len(spans))
	}
	if !strings.Contains(buf.String(), "render failed") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"target":"/a/b"`) {
		t.Errorf("expected target field in log, got %q", buf.String())
	}
}

func TestNopMiddleware_RunsFunction(t *testing.T) {
	called := false
	err := NopMiddleware().Run(context.Background(), OpMeta{Op: "sample"}, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("Run() = %v, called = %v", err, called)
	}
}

func TestOpMeta_SpanName(t *testing.T) {
	tests := []struct {
		meta OpMeta
		want string
	}{
		{OpMeta{Op: "lookup", Kind: "public"}, "rendercache.lookup.public"},
		{OpMeta{Op: "render"}, "rendercache.render"},
	}
	for _, tc := range tests {
		if got := tc.meta.SpanName(); got != tc.want {
			t.Errorf("SpanName() = %q, want %q", got, tc.want)
		}
	}
	if err := (OpMeta{}).Validate(); !errors.Is(err, ErrMissingOp) {
		t.Errorf("Validate() = %v, want ErrMissingOp", err)
	}
}
