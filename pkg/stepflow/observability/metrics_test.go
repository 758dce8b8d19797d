package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a recorder backed by a manual reader.
func setupMetricsTest(t *testing.T) (MetricsRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown meter provider: %v", err)
		}
	})
	return NewMetricsRecorderWithProvider(provider), reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterTotal(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder_Global(t *testing.T) {
	original := otel.GetMeterProvider()
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	defer otel.SetMeterProvider(original)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestRecordStepExecution(t *testing.T) {
	recorder, reader := setupMetricsTest(t)
	ctx := context.Background()

	recorder.RecordStepExecution(ctx, "flow", "a", "model", 20*time.Millisecond, 1, true, "")
	recorder.RecordStepExecution(ctx, "flow", "b", "tool", 30*time.Millisecond, 3, false, "transient")

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), counterTotal(t, rm, "stepflow.step.executions"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "stepflow.step.failures"))

	failures := findMetric(rm, "stepflow.step.failures").Data.(metricdata.Sum[int64])
	require.Len(t, failures.DataPoints, 1)
	category, ok := failures.DataPoints[0].Attributes.Value(attribute.Key("category"))
	require.True(t, ok)
	assert.Equal(t, "transient", category.AsString())

	latency := findMetric(rm, "stepflow.step.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)

	attempts := findMetric(rm, "stepflow.step.attempts").Data.(metricdata.Histogram[int64])
	var sum int64
	for _, dp := range attempts.DataPoints {
		sum += dp.Sum
	}
	assert.Equal(t, int64(4), sum)
}

func TestRecordSkipRetryLayerRun(t *testing.T) {
	recorder, reader := setupMetricsTest(t)
	ctx := context.Background()

	recorder.RecordStepSkipped(ctx, "flow", "c")
	recorder.RecordRetry(ctx, "flow", "a")
	recorder.RecordRetry(ctx, "flow", "a")
	recorder.RecordLayer(ctx, "flow", 3)
	recorder.RecordFlowRun(ctx, "flow", "dag", true, time.Second)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), counterTotal(t, rm, "stepflow.step.skipped"))
	assert.Equal(t, int64(2), counterTotal(t, rm, "stepflow.step.retries"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "stepflow.flow.runs"))

	layer := findMetric(rm, "stepflow.layer.width").Data.(metricdata.Histogram[int64])
	require.Len(t, layer.DataPoints, 1)
	assert.Equal(t, int64(3), layer.DataPoints[0].Sum)
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordStepExecution(ctx, "f", "a", "model", time.Second, 1, false, "permanent")
		m.RecordStepSkipped(ctx, "f", "a")
		m.RecordRetry(ctx, "f", "a")
		m.RecordLayer(ctx, "f", 1)
		m.RecordFlowRun(ctx, "f", "sequential", true, time.Second)
	})
}
