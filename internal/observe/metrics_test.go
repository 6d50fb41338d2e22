package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.LLMDuration.Record(ctx, 1.5)
	m.ToolExecutionDuration.Record(ctx, 0.25,
		metric.WithAttributes(attribute.String("tool", "news_archive_search")))

	rm := collect(t, reader)
	llm := findMetric(rm, "vectorpress.llm.duration")
	if llm == nil {
		t.Fatal("vectorpress.llm.duration not recorded")
	}
	hist, ok := llm.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", llm.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("unexpected data points: %+v", hist.DataPoints)
	}
}

func TestToolCallCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "web_search", "ok")
	m.RecordToolCall(ctx, "web_search", "ok")
	m.RecordToolCall(ctx, "web_search", "error")

	rm := collect(t, reader)
	calls := findMetric(rm, "vectorpress.tool.calls")
	if calls == nil {
		t.Fatal("vectorpress.tool.calls not recorded")
	}
	sum, ok := calls.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", calls.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total tool calls = %d, want 3", total)
	}
}

func TestRetrievedDocumentsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordRetrievedDocuments(context.Background(), "corpus_search", 7)

	rm := collect(t, reader)
	docs := findMetric(rm, "vectorpress.retrieved.documents")
	if docs == nil {
		t.Fatal("vectorpress.retrieved.documents not recorded")
	}
	sum := docs.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 7 {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	sessions := findMetric(rm, "vectorpress.active_sessions")
	if sessions == nil {
		t.Fatal("vectorpress.active_sessions not recorded")
	}
	sum := sessions.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}
}

func TestDefaultMetricsSingleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
