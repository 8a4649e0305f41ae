package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/storefront/analytics/internal/infrastructure/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// MeterProvider wraps the OpenTelemetry MeterProvider with lifecycle
// management
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
	config   config.TelemetryConfig
}

// NewMeterProvider creates and configures a MeterProvider.
// If telemetry is disabled, the global no-op meter serves all instruments
func NewMeterProvider(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{
		logger: logger,
		config: cfg,
	}

	if !cfg.Enabled {
		logger.Info("telemetry disabled, using no-op meter provider")
		return mp, nil
	}

	exporterOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint),
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metrics exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	mp.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(60*time.Second)),
		),
	)
	otel.SetMeterProvider(mp.provider)

	logger.Info("meter provider initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.String("service_name", cfg.ServiceName),
	)

	return mp, nil
}

// Meter returns a named meter from the provider
func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp.provider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.provider.Meter(name, opts...)
}

// Shutdown flushes pending metrics and stops the provider
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		mp.logger.Error("meter provider shutdown failed", zap.Error(err))
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}

// Attribute keys shared by collector metrics
var (
	AttrEventKind = attribute.Key("event.kind")
	AttrStatus    = attribute.Key("status")
)

// CollectorMetrics are the instruments recorded on the collector's ingest
// path
type CollectorMetrics struct {
	EventsReceived     metric.Int64Counter
	EventsDeduplicated metric.Int64Counter
	EventsPersisted    metric.Int64Counter
	BatchesPersisted   metric.Int64Counter
	ExportDuration     metric.Float64Histogram
}

// NewCollectorMetrics creates the collector's instruments on the given meter
func NewCollectorMetrics(meter metric.Meter) (*CollectorMetrics, error) {
	received, err := meter.Int64Counter("analytics.events.received",
		metric.WithDescription("Envelopes received on the ingest endpoint"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create received counter: %w", err)
	}

	deduplicated, err := meter.Int64Counter("analytics.events.deduplicated",
		metric.WithDescription("Envelopes discarded as at-least-once redeliveries"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create deduplicated counter: %w", err)
	}

	persisted, err := meter.Int64Counter("analytics.events.persisted",
		metric.WithDescription("Envelopes written to storage"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create persisted counter: %w", err)
	}

	batches, err := meter.Int64Counter("analytics.session_batches.persisted",
		metric.WithDescription("Session recording batches written to storage"),
		metric.WithUnit("{batch}"))
	if err != nil {
		return nil, fmt.Errorf("create batches counter: %w", err)
	}

	exportDuration, err := meter.Float64Histogram("analytics.export.duration",
		metric.WithDescription("Export query duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create export histogram: %w", err)
	}

	return &CollectorMetrics{
		EventsReceived:     received,
		EventsDeduplicated: deduplicated,
		EventsPersisted:    persisted,
		BatchesPersisted:   batches,
		ExportDuration:     exportDuration,
	}, nil
}

// RecordReceived counts one received envelope of the given kind
func (m *CollectorMetrics) RecordReceived(ctx context.Context, kind string) {
	m.EventsReceived.Add(ctx, 1, metric.WithAttributes(AttrEventKind.String(kind)))
}

// RecordDeduplicated counts one discarded duplicate
func (m *CollectorMetrics) RecordDeduplicated(ctx context.Context, kind string) {
	m.EventsDeduplicated.Add(ctx, 1, metric.WithAttributes(AttrEventKind.String(kind)))
}

// RecordPersisted counts one stored envelope
func (m *CollectorMetrics) RecordPersisted(ctx context.Context, kind string) {
	m.EventsPersisted.Add(ctx, 1, metric.WithAttributes(AttrEventKind.String(kind)))
}

// RecordBatchPersisted counts one stored session batch
func (m *CollectorMetrics) RecordBatchPersisted(ctx context.Context) {
	m.BatchesPersisted.Add(ctx, 1)
}

// RecordExport records one export query duration with its outcome
func (m *CollectorMetrics) RecordExport(ctx context.Context, d time.Duration, status string) {
	m.ExportDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrStatus.String(status)))
}
