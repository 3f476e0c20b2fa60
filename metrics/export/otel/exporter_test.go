package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mk070/zenauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot zenauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() zenauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := zenauth.MetricsSnapshot{
		Counters:   make(map[zenauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[zenauth.MetricID]zenauth.HistogramSnapshot, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, v := range f.snapshot.Histograms {
		out.Histograms[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func intValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		if len(d.DataPoints) != 1 {
			t.Fatalf("expected one data point, got %d", len(d.DataPoints))
		}
		return d.DataPoints[0].Value
	case metricdata.Gauge[int64]:
		if len(d.DataPoints) != 1 {
			t.Fatalf("expected one data point, got %d", len(d.DataPoints))
		}
		return d.DataPoints[0].Value
	default:
		t.Fatalf("unexpected aggregation %T", data)
		return 0
	}
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("zenauth-test")

	src := &fakeSource{
		snapshot: zenauth.MetricsSnapshot{
			Counters: map[zenauth.MetricID]uint64{
				zenauth.MetricSignInSuccess: 3,
			},
			Histograms: map[zenauth.MetricID]zenauth.HistogramSnapshot{
				zenauth.MetricAuthenticateLatency: {
					Buckets: [8]uint64{1, 1, 0, 0, 0, 0, 0, 1},
					Sum:     2 * time.Second,
				},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	if v := intValue(t, got["zenauth_signin_success_total"]); v != 3 {
		t.Fatalf("expected signin success 3, got %d", v)
	}
	if _, ok := got["zenauth_signin_failure_total"]; ok {
		t.Fatal("counters absent from the snapshot must not be observed")
	}
	if v := intValue(t, got["zenauth_audit_dropped_total"]); v != 1 {
		t.Fatalf("expected audit dropped 1, got %d", v)
	}
	if v := intValue(t, got["zenauth_authenticate_latency_seconds_bucket_le_0_01"]); v != 2 {
		t.Fatalf("expected cumulative bucket 2, got %d", v)
	}
	if v := intValue(t, got["zenauth_authenticate_latency_seconds_bucket_le_inf"]); v != 3 {
		t.Fatalf("expected +Inf bucket 3, got %d", v)
	}
	if v := intValue(t, got["zenauth_authenticate_latency_seconds_count"]); v != 3 {
		t.Fatalf("expected count 3, got %d", v)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("zenauth-test")

	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestBucketSuffixes(t *testing.T) {
	got := bucketSuffixes()
	if got[0] != "0_005" || got[6] != "0_5" || got[7] != "inf" {
		t.Fatalf("unexpected suffixes %v", got)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("zenauth-test")

	src := &fakeSource{
		snapshot: zenauth.MetricsSnapshot{
			Counters: map[zenauth.MetricID]uint64{
				zenauth.MetricSignInSuccess: 1,
			},
			Histograms: map[zenauth.MetricID]zenauth.HistogramSnapshot{},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[zenauth.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
