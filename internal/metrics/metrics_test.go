package metrics

import (
	"Go2NetProfile/internal/config"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestRecorder_RecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewRecorder(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordRun(ctx, OutcomeOK, 1500*time.Microsecond, 120, 7, map[string]int{"night-owl": 2, "dns-suspect": 1})
	r.RecordRun(ctx, OutcomeFailed, time.Millisecond, 0, 0, nil)

	data := collect(t, reader)

	runs := data["netprofile_runs_total"].(metricdata.Sum[int64])
	require.Len(t, runs.DataPoints, 2)
	for _, dp := range runs.DataPoints {
		assert.Equal(t, int64(1), dp.Value)
	}

	records := data["netprofile_records_loaded_total"].(metricdata.Sum[int64])
	require.Len(t, records.DataPoints, 1)
	assert.Equal(t, int64(120), records.DataPoints[0].Value)

	profiles := data["netprofile_profiles"].(metricdata.Gauge[int64])
	require.Len(t, profiles.DataPoints, 1)
	assert.Equal(t, int64(7), profiles.DataPoints[0].Value)

	tags := data["netprofile_tags_total"].(metricdata.Sum[int64])
	byTag := make(map[string]int64)
	for _, dp := range tags.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("tag"))
		byTag[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"night-owl": 2, "dns-suspect": 1}, byTag)

	hist := data["netprofile_run_duration_ms"].(metricdata.Histogram[float64])
	assert.Len(t, hist.DataPoints, 2)
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordRun(context.Background(), OutcomeOK, time.Second, 1, 1, nil)
	})
	assert.NotNil(t, Global())
}

func TestInit_NoEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.MetricsConfig{}, "test", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
