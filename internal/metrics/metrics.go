// Package metrics exposes the run instruments and the optional OTLP
// exporter.
package metrics

import (
	"Go2NetProfile/internal/config"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const meterName = "go2netprofile"

// Run outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Init installs a global meter provider exporting over OTLP gRPC when an
// endpoint is configured. Without one, the global no-op provider stays in
// place and the returned shutdown does nothing.
func Init(ctx context.Context, cfg config.MetricsConfig, service string, logger *zap.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OTLPEndpoint == "" {
		return noop, nil
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	interval := config.Duration(cfg.Interval)
	if interval <= 0 {
		interval = 10 * time.Second
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", service),
	))
	if err != nil {
		res = resource.Default()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	logger.Named("metrics").Info("metrics initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return mp.Shutdown, nil
}

// Recorder holds the analysis run instruments.
type Recorder struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	records  metric.Int64Counter
	profiles metric.Int64Gauge
	tags     metric.Int64Counter
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error
	if r.runs, err = meter.Int64Counter("netprofile_runs_total",
		metric.WithDescription("Analysis runs by outcome")); err != nil {
		return nil, err
	}
	if r.duration, err = meter.Float64Histogram("netprofile_run_duration_ms",
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if r.records, err = meter.Int64Counter("netprofile_records_loaded_total"); err != nil {
		return nil, err
	}
	if r.profiles, err = meter.Int64Gauge("netprofile_profiles",
		metric.WithDescription("Users profiled by the latest run")); err != nil {
		return nil, err
	}
	if r.tags, err = meter.Int64Counter("netprofile_tags_total",
		metric.WithDescription("Tag assignments by tag")); err != nil {
		return nil, err
	}
	return r, nil
}

// Global creates a Recorder on the global meter provider. It returns nil if
// the instruments cannot be created; a nil Recorder records nothing.
func Global() *Recorder {
	r, err := NewRecorder(otel.Meter(meterName))
	if err != nil {
		return nil
	}
	return r
}

// RecordRun records one finished run. A nil Recorder records nothing.
func (r *Recorder) RecordRun(ctx context.Context, outcome string, elapsed time.Duration, records, profiles int, tagCounts map[string]int) {
	if r == nil {
		return
	}
	r.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	r.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == OutcomeFailed {
		return
	}
	r.records.Add(ctx, int64(records))
	r.profiles.Record(ctx, int64(profiles))
	for tag, n := range tagCounts {
		r.tags.Add(ctx, int64(n), metric.WithAttributes(attribute.String("tag", tag)))
	}
}
