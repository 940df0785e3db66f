package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/2rkf/nekoi/core"
)

// OTel records quota decisions as OpenTelemetry instruments exported in the
// Prometheus format. It implements quota.Recorder.
type OTel struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	checks      metric.Int64Counter
	storeErrors metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewOTel sets up a meter provider backed by its own Prometheus registry.
func NewOTel() (*OTel, error) {
	registry := promclient.NewRegistry()

	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := provider.Meter("nekoi")

	checks, err := meter.Int64Counter(
		"nekoi_ratelimit_checks_total",
		metric.WithDescription("Quota checks by tier and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks counter: %w", err)
	}

	storeErrors, err := meter.Int64Counter(
		"nekoi_ratelimit_store_errors_total",
		metric.WithDescription("Counter store operations that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store errors counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"nekoi_ratelimit_check_duration_seconds",
		metric.WithDescription("Quota check latency including the store round-trip"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check duration histogram: %w", err)
	}

	return &OTel{
		registry:    registry,
		provider:    provider,
		checks:      checks,
		storeErrors: storeErrors,
		duration:    duration,
	}, nil
}

func (o *OTel) RecordCheck(ctx context.Context, _ string, tier core.Tier, status *core.Status, elapsed time.Duration) {
	outcome := "allowed"
	if !status.Allowed {
		outcome = "denied"
	}
	attrs := metric.WithAttributes(
		attribute.String("tier", tier.String()),
		attribute.String("outcome", outcome),
	)
	o.checks.Add(ctx, 1, attrs)
	o.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("tier", tier.String())))
}

func (o *OTel) RecordStoreError(ctx context.Context, op string, _ error) {
	o.storeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Handler serves the Prometheus text exposition.
func (o *OTel) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (o *OTel) Shutdown(ctx context.Context) error {
	return o.provider.Shutdown(ctx)
}
