package opentelemetry

import (
	"context"
	"errors"
	"fmt"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNilTelemetryConfig indicates that nil config was provided to NewTelemetry.
	ErrNilTelemetryConfig = errors.New("telemetry config cannot be nil")
	// ErrMissingLibraryName indicates an empty TelemetryConfig.LibraryName.
	ErrMissingLibraryName = errors.New("telemetry library name is required")
	// ErrMissingEndpoint indicates telemetry is enabled without a collector endpoint.
	ErrMissingEndpoint = errors.New("telemetry collector endpoint is required when enabled")
)

// TelemetryConfig configures NewTelemetry.
type TelemetryConfig struct {
	LibraryName               string
	ServiceName               string
	ServiceVersion            string
	DeploymentEnv             string
	CollectorExporterEndpoint string
	EnableTelemetry           bool
	Logger                    log.Logger
}

// Telemetry bundles the providers and the metrics factory built from them.
type Telemetry struct {
	TelemetryConfig
	TracerProvider *sdktrace.TracerProvider
	MetricProvider *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	MetricsFactory *metrics.MetricsFactory
	shutdowns      []func(context.Context) error
}

func (cfg *TelemetryConfig) validate() error {
	if cfg.LibraryName == "" {
		return ErrMissingLibraryName
	}

	if cfg.EnableTelemetry && cfg.CollectorExporterEndpoint == "" {
		return ErrMissingEndpoint
	}

	return nil
}

func (cfg *TelemetryConfig) newResource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.DeploymentEnv),
		semconv.TelemetrySDKName(constant.TelemetrySDKName),
		semconv.TelemetrySDKLanguageGo,
	)
}

// NewTelemetry builds tracer, meter and logger providers. With EnableTelemetry
// false the providers have no exporters, so spans and metrics stay in-process.
// Call ApplyGlobals to install them as the otel globals.
func NewTelemetry(ctx context.Context, cfg *TelemetryConfig) (*Telemetry, error) {
	if cfg == nil {
		return nil, ErrNilTelemetryConfig
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	tl := &Telemetry{TelemetryConfig: *cfg}
	tl.Logger = logger

	if !cfg.EnableTelemetry {
		logger.Log(ctx, log.LevelWarn, "telemetry export disabled")

		tl.TracerProvider = sdktrace.NewTracerProvider()
		tl.MetricProvider = sdkmetric.NewMeterProvider()
		tl.LoggerProvider = sdklog.NewLoggerProvider()
	} else if err := tl.buildExporting(ctx); err != nil {
		return nil, err
	}

	tl.shutdowns = append(tl.shutdowns, tl.MetricProvider.Shutdown, tl.TracerProvider.Shutdown, tl.LoggerProvider.Shutdown)

	factory, err := metrics.NewMetricsFactory(tl.MetricProvider.Meter(cfg.LibraryName), logger)
	if err != nil {
		return nil, fmt.Errorf("metrics factory: %w", err)
	}

	tl.MetricsFactory = factory

	return tl, nil
}

func (tl *Telemetry) buildExporting(ctx context.Context) error {
	endpoint := tl.CollectorExporterEndpoint
	res := tl.newResource()

	traceExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("can't initialize tracer exporter: %w", err)
	}

	metricExp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("can't initialize metric exporter: %w", err)
	}

	logExp, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(endpoint), otlploggrpc.WithInsecure())
	if err != nil {
		return fmt.Errorf("can't initialize logger exporter: %w", err)
	}

	tl.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	tl.MetricProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	tl.LoggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
	)

	tl.Logger.Log(ctx, log.LevelInfo, "telemetry initialized", log.String("endpoint", endpoint))

	return nil
}

// ApplyGlobals installs the providers and the W3C propagator as otel globals.
func (tl *Telemetry) ApplyGlobals() {
	otel.SetTracerProvider(tl.TracerProvider)
	otel.SetMeterProvider(tl.MetricProvider)
	global.SetLoggerProvider(tl.LoggerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

// Tracer returns a tracer from this telemetry's provider.
func (tl *Telemetry) Tracer() trace.Tracer {
	if tl == nil || tl.TracerProvider == nil {
		return otel.Tracer(constant.TelemetrySDKName)
	}

	return tl.TracerProvider.Tracer(tl.LibraryName)
}

// Shutdown flushes and stops every provider. All providers are attempted;
// the errors are joined.
func (tl *Telemetry) Shutdown(ctx context.Context) error {
	if tl == nil {
		return nil
	}

	var errs []error

	for _, shutdown := range tl.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
