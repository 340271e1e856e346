package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta describes one engine operation for telemetry purposes.
type OpMeta struct {
	Op     string // lookup, compute, refresh, invalidate, render, fill, sample (required)
	Kind   string // cache kind, if the operation touches a store
	Route  string // route being rendered, if any
	Target string // tag or path for invalidations, hole path for fills
}

// SpanName returns the deterministic span name for this operation.
// Format: rendercache.<op> or rendercache.<op>.<kind>
func (m OpMeta) SpanName() string {
	if m.Kind != "" {
		return "rendercache." + m.Op + "." + m.Kind
	}
	return "rendercache." + m.Op
}

// Validate reports whether the metadata can be recorded.
func (m OpMeta) Validate() error {
	if m.Op == "" {
		return ErrMissingOp
	}
	return nil
}

func (m OpMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("rendercache.op", m.Op)}
	if m.Kind != "" {
		attrs = append(attrs, attribute.String("rendercache.kind", m.Kind))
	}
	if m.Route != "" {
		attrs = append(attrs, attribute.String("rendercache.route", m.Route))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with operation-scoped spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	attrs := meta.attributes()
	if meta.Target != "" {
		attrs = append(attrs, attribute.String("rendercache.target", meta.Target))
	}
	attrs = append(attrs, attribute.Bool("rendercache.error", false))

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("rendercache.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NoopTracer returns a Tracer whose spans are never recorded.
func NoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
