package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope for stepflow meters and tracers.
const ScopeName = "github.com/randalmurphal/stepflow"

// MetricsRecorder records stepflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStepExecution records an invoked step with its duration and
	// outcome. category is empty for successful steps.
	RecordStepExecution(ctx context.Context, flowID, stepID, kind string, duration time.Duration, attempts int, success bool, category string)

	// RecordStepSkipped records a step whose condition was false.
	RecordStepSkipped(ctx context.Context, flowID, stepID string)

	// RecordRetry records a failed attempt that will be retried.
	RecordRetry(ctx context.Context, flowID, stepID string)

	// RecordLayer records the width of a wavefront layer.
	RecordLayer(ctx context.Context, flowID string, width int)

	// RecordFlowRun records a flow run completion.
	RecordFlowRun(ctx context.Context, flowID, mode string, success bool, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stepExecutions metric.Int64Counter
	stepLatency    metric.Float64Histogram
	stepFailures   metric.Int64Counter
	stepAttempts   metric.Int64Histogram
	stepSkipped    metric.Int64Counter
	stepRetries    metric.Int64Counter
	layerWidth     metric.Int64Histogram
	flowRuns       metric.Int64Counter
	flowLatency    metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(ScopeName)
	m := &otelMetrics{}
	var err error

	if m.stepExecutions, err = meter.Int64Counter("stepflow.step.executions",
		metric.WithDescription("Number of invoked steps"),
	); err != nil {
		return nil, err
	}
	if m.stepLatency, err = meter.Float64Histogram("stepflow.step.latency_ms",
		metric.WithDescription("Step latency in milliseconds, retries included"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.stepFailures, err = meter.Int64Counter("stepflow.step.failures",
		metric.WithDescription("Number of steps that recorded a failed result"),
	); err != nil {
		return nil, err
	}
	if m.stepAttempts, err = meter.Int64Histogram("stepflow.step.attempts",
		metric.WithDescription("Invocation attempts per step"),
	); err != nil {
		return nil, err
	}
	if m.stepSkipped, err = meter.Int64Counter("stepflow.step.skipped",
		metric.WithDescription("Number of steps skipped by their condition"),
	); err != nil {
		return nil, err
	}
	if m.stepRetries, err = meter.Int64Counter("stepflow.step.retries",
		metric.WithDescription("Number of retried step attempts"),
	); err != nil {
		return nil, err
	}
	if m.layerWidth, err = meter.Int64Histogram("stepflow.layer.width",
		metric.WithDescription("Number of steps in a wavefront layer"),
	); err != nil {
		return nil, err
	}
	if m.flowRuns, err = meter.Int64Counter("stepflow.flow.runs",
		metric.WithDescription("Number of flow runs"),
	); err != nil {
		return nil, err
	}
	if m.flowLatency, err = meter.Float64Histogram("stepflow.flow.latency_ms",
		metric.WithDescription("Flow run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses the global OTel
// meter provider. If metrics initialization fails, returns a no-op recorder.
//
// Configure the provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder bound to provider
// instead of the global one.
func NewMetricsRecorderWithProvider(provider metric.MeterProvider) MetricsRecorder {
	m, err := newOtelMetrics(provider)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStepExecution implements MetricsRecorder.
func (m *otelMetrics) RecordStepExecution(ctx context.Context, flowID, stepID, kind string, duration time.Duration, attempts int, success bool, category string) {
	attrs := metric.WithAttributes(
		attribute.String("flow_id", flowID),
		attribute.String("step_id", stepID),
		attribute.String("kind", kind),
	)
	m.stepExecutions.Add(ctx, 1, attrs)
	m.stepLatency.Record(ctx, durationMs(duration), attrs)
	m.stepAttempts.Record(ctx, int64(attempts), attrs)

	if !success {
		m.stepFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("flow_id", flowID),
			attribute.String("step_id", stepID),
			attribute.String("kind", kind),
			attribute.String("category", category),
		))
	}
}

// RecordStepSkipped implements MetricsRecorder.
func (m *otelMetrics) RecordStepSkipped(ctx context.Context, flowID, stepID string) {
	m.stepSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow_id", flowID),
		attribute.String("step_id", stepID),
	))
}

// RecordRetry implements MetricsRecorder.
func (m *otelMetrics) RecordRetry(ctx context.Context, flowID, stepID string) {
	m.stepRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow_id", flowID),
		attribute.String("step_id", stepID),
	))
}

// RecordLayer implements MetricsRecorder.
func (m *otelMetrics) RecordLayer(ctx context.Context, flowID string, width int) {
	m.layerWidth.Record(ctx, int64(width), metric.WithAttributes(
		attribute.String("flow_id", flowID),
	))
}

// RecordFlowRun implements MetricsRecorder.
func (m *otelMetrics) RecordFlowRun(ctx context.Context, flowID, mode string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("flow_id", flowID),
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	)
	m.flowRuns.Add(ctx, 1, attrs)
	m.flowLatency.Record(ctx, durationMs(duration), attrs)
}
