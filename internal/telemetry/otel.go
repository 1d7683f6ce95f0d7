package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	constants "logamizer/config"
)

// =============================================================================
// Global OTel State
// =============================================================================

var (
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	otelMu        sync.Mutex
	otelStarted   bool

	jobsCounter     metric.Int64Counter
	linesCounter    metric.Int64Counter
	findingsCounter metric.Int64Counter
)

// OTelConfig configures the OTLP metrics export.
type OTelConfig struct {
	Endpoint       string
	AuthToken      string
	Hostname       string
	ExportInterval time.Duration
}

// StartOTelExporter initializes the OTLP metrics exporter. Export is
// optional; workers run fine without it.
func StartOTelExporter(cfg *OTelConfig) error {
	otelMu.Lock()
	defer otelMu.Unlock()

	if otelStarted {
		return nil
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("OTLP config incomplete: endpoint required")
	}

	ctx := context.Background()

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithURLPath(constants.OTLP_PATH),
		// Retry configuration for resilience
		otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  2 * time.Minute,
		}),
		otlpmetrichttp.WithTimeout(30 * time.Second),
	}
	if cfg.AuthToken != "" {
		opts = append(opts, otlpmetrichttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.AuthToken,
		}))
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	hostname := cfg.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	// Create resource without merging with Default() to avoid schema URL
	// conflicts (resource.Default() uses a newer schema than semconv here)
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("logamizer-worker"),
		semconv.ServiceVersion("1.0.0"),
		semconv.HostName(hostname),
		attribute.String("os.type", runtime.GOOS),
	)

	interval := cfg.ExportInterval
	if interval == 0 {
		interval = constants.DEFAULT_EXPORT_INTERVAL_SEC * time.Second
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(interval),
			),
		),
	)

	otel.SetMeterProvider(meterProvider)

	meter = meterProvider.Meter("logamizer/worker",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	if err := registerInstruments(); err != nil {
		return fmt.Errorf("failed to register instruments: %w", err)
	}

	otelStarted = true
	return nil
}

func registerInstruments() error {
	var err error
	jobsCounter, err = meter.Int64Counter("logamizer.jobs",
		metric.WithDescription("Pipeline jobs by kind and terminal status"))
	if err != nil {
		return err
	}
	linesCounter, err = meter.Int64Counter("logamizer.lines",
		metric.WithDescription("Log lines by parse outcome"))
	if err != nil {
		return err
	}
	findingsCounter, err = meter.Int64Counter("logamizer.findings",
		metric.WithDescription("Findings emitted by rule"))
	return err
}

// RecordJob counts one terminal job state on both export paths.
func RecordJob(kind, status string, duration time.Duration) {
	JobsCompleted.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(duration.Seconds())

	otelMu.Lock()
	defer otelMu.Unlock()
	if otelStarted {
		jobsCounter.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("kind", kind),
				attribute.String("status", status)))
	}
}

// RecordLines counts parsed and failed lines for a site.
func RecordLines(site string, parsed, failed int64) {
	LinesParsed.WithLabelValues(site).Add(float64(parsed))
	LinesFailed.WithLabelValues(site).Add(float64(failed))

	otelMu.Lock()
	defer otelMu.Unlock()
	if otelStarted {
		ctx := context.Background()
		linesCounter.Add(ctx, parsed, metric.WithAttributes(attribute.String("outcome", "parsed")))
		linesCounter.Add(ctx, failed, metric.WithAttributes(attribute.String("outcome", "failed")))
	}
}

// RecordFinding counts one finding on both export paths.
func RecordFinding(site, rule string) {
	FindingsEmitted.WithLabelValues(site, rule).Inc()

	otelMu.Lock()
	defer otelMu.Unlock()
	if otelStarted {
		findingsCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("rule", rule)))
	}
}

// StopOTelExporter gracefully shuts down the OTel exporter
func StopOTelExporter() error {
	otelMu.Lock()
	defer otelMu.Unlock()

	if !otelStarted || meterProvider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := meterProvider.Shutdown(ctx)
	otelStarted = false
	meterProvider = nil
	meter = nil

	return err
}

// ForceFlush forces immediate export of all pending metrics.
func ForceFlush() error {
	otelMu.Lock()
	defer otelMu.Unlock()

	if !otelStarted || meterProvider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return meterProvider.ForceFlush(ctx)
}

// IsOTelStarted returns true if the exporter is running.
func IsOTelStarted() bool {
	otelMu.Lock()
	defer otelMu.Unlock()
	return otelStarted
}
