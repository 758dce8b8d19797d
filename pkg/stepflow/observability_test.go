package stepflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestRun_EmitsMetricsAndSpans(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tracers := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = meters.Shutdown(context.Background())
		_ = tracers.Shutdown(context.Background())
	})

	model := newFakeModel(map[string]string{"m": "ok"})
	model.failures["flaky"] = 1
	model.replies["flaky"] = "eventually"
	exec, _ := newTestExecutor(model, nil,
		WithMetrics(observability.NewMetricsRecorderWithProvider(meters)),
		WithTracing(observability.NewSpanManagerWithProvider(tracers)),
	)

	flow := Flow{ID: "observed", Steps: []Step{
		{ID: "a", Model: "m"},
		{ID: "b", Model: "flaky", Retries: 1, BackoffMs: 1, DependsOn: StringList{"a"}},
		{ID: "c", Model: "m", Condition: "false", DependsOn: StringList{"a"}},
	}}
	_, err := exec.Run(context.Background(), flow, nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(2), sumCounter(t, rm, "stepflow.step.executions"))
	assert.Equal(t, int64(1), sumCounter(t, rm, "stepflow.step.skipped"))
	assert.Equal(t, int64(1), sumCounter(t, rm, "stepflow.step.retries"))
	assert.Equal(t, int64(1), sumCounter(t, rm, "stepflow.flow.runs"))
	assert.Zero(t, sumCounter(t, rm, "stepflow.step.failures"))

	spans := exporter.GetSpans()
	names := make(map[string]tracetest.SpanStub, len(spans))
	for _, s := range spans {
		names[s.Name] = s
	}
	require.Contains(t, names, "stepflow.run")
	require.Contains(t, names, "stepflow.step.a")
	require.Contains(t, names, "stepflow.step.b")
	require.Contains(t, names, "stepflow.step.c")

	run := names["stepflow.run"]
	assert.Equal(t, run.SpanContext.TraceID(), names["stepflow.step.b"].SpanContext.TraceID())
	assert.Equal(t, run.SpanContext.SpanID(), names["stepflow.step.b"].Parent.SpanID())
	assert.Equal(t, codes.Ok, run.Status.Code)
}

func TestRun_FatalErrorMarksRunSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracers := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tracers.Shutdown(context.Background()) })

	exec, _ := newTestExecutor(newFakeModel(nil), nil,
		WithTracing(observability.NewSpanManagerWithProvider(tracers)))

	_, err := exec.Run(context.Background(), Flow{ID: "f", Steps: []Step{{ID: "x", Tool: "absent"}}}, nil)
	require.Error(t, err)

	for _, s := range exporter.GetSpans() {
		if s.Name == "stepflow.run" {
			assert.Equal(t, codes.Error, s.Status.Code)
			return
		}
	}
	t.Fatal("run span not exported")
}
