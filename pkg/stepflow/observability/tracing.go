package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span for an entire flow run.
	StartRunSpan(ctx context.Context, flowID, runID, mode string) (context.Context, trace.Span)

	// StartStepSpan starts a span for one step, as a child of the run span.
	StartStepSpan(ctx context.Context, stepID, kind string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses the global OTel tracer
// provider at the time of the call.
//
//	otel.SetTracerProvider(yourProvider)
//	spans := observability.NewSpanManager()
func NewSpanManager() SpanManager {
	return NewSpanManagerWithProvider(otel.GetTracerProvider())
}

// NewSpanManagerWithProvider returns a SpanManager bound to provider.
func NewSpanManagerWithProvider(provider trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: provider.Tracer(ScopeName)}
}

// StartRunSpan implements SpanManager.
func (m *otelSpanManager) StartRunSpan(ctx context.Context, flowID, runID, mode string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "stepflow.run",
		trace.WithAttributes(
			attribute.String("flow.id", flowID),
			attribute.String("run.id", runID),
			attribute.String("run.mode", mode),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStepSpan implements SpanManager.
func (m *otelSpanManager) StartStepSpan(ctx context.Context, stepID, kind string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "stepflow.step."+stepID,
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("step.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError implements SpanManager.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent implements SpanManager.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
