package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jose254W/cards/wallet/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MetricsFactory creates OpenTelemetry instruments once and hands out builders
// for them. It is safe for concurrent use.
type MetricsFactory struct {
	meter      metric.Meter
	counters   sync.Map // string -> metric.Int64Counter
	gauges     sync.Map // string -> metric.Int64Gauge
	histograms sync.Map // string -> metric.Int64Histogram
	logger     log.Logger
}

// ErrNilMeter indicates that a nil OTEL meter was provided.
var ErrNilMeter = errors.New("metric meter cannot be nil")

// Metric describes an instrument. Buckets only apply to histograms.
type Metric struct {
	Name        string
	Description string
	Unit        string
	Buckets     []float64
}

// Histogram bucket defaults.
var (
	// DefaultLatencyBuckets are in milliseconds, matching wallet_remote_latency.
	DefaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000}

	// DefaultBatchBuckets size reconciliation batches.
	DefaultBatchBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// NewMetricsFactory creates a new MetricsFactory instance.
func NewMetricsFactory(meter metric.Meter, logger log.Logger) (*MetricsFactory, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &MetricsFactory{meter: meter, logger: logger}, nil
}

// NewNopFactory returns a MetricsFactory backed by OpenTelemetry's no-op meter.
func NewNopFactory() *MetricsFactory {
	return &MetricsFactory{
		meter:  noop.NewMeterProvider().Meter("nop"),
		logger: log.NewNop(),
	}
}

// Counter creates or retrieves a counter metric and returns a builder for it.
func (f *MetricsFactory) Counter(m Metric) (*CounterBuilder, error) {
	counter, err := loadOrCreate(f, &f.counters, m.Name, "counter", func() (metric.Int64Counter, error) {
		return f.meter.Int64Counter(m.Name, instrumentOptions[metric.Int64CounterOption](m)...)
	})
	if err != nil {
		return nil, err
	}

	return &CounterBuilder{counter: counter, name: m.Name}, nil
}

// Gauge creates or retrieves a gauge metric and returns a builder for it.
func (f *MetricsFactory) Gauge(m Metric) (*GaugeBuilder, error) {
	gauge, err := loadOrCreate(f, &f.gauges, m.Name, "gauge", func() (metric.Int64Gauge, error) {
		return f.meter.Int64Gauge(m.Name, instrumentOptions[metric.Int64GaugeOption](m)...)
	})
	if err != nil {
		return nil, err
	}

	return &GaugeBuilder{gauge: gauge, name: m.Name}, nil
}

// Histogram creates or retrieves a histogram metric and returns a builder for it.
// Histograms with the same name but different buckets are cached separately.
func (f *MetricsFactory) Histogram(m Metric) (*HistogramBuilder, error) {
	if m.Buckets == nil {
		m.Buckets = selectDefaultBuckets(m.Name)
	}

	opts := instrumentOptions[metric.Int64HistogramOption](m)
	opts = append(opts, metric.WithExplicitBucketBoundaries(m.Buckets...))

	histogram, err := loadOrCreate(f, &f.histograms, histogramCacheKey(m.Name, m.Buckets), "histogram", func() (metric.Int64Histogram, error) {
		return f.meter.Int64Histogram(m.Name, opts...)
	})
	if err != nil {
		return nil, err
	}

	return &HistogramBuilder{histogram: histogram, name: m.Name}, nil
}

func selectDefaultBuckets(name string) []float64 {
	lower := strings.ToLower(name)

	if strings.Contains(lower, "batch") || strings.Contains(lower, "records") {
		return DefaultBatchBuckets
	}

	return DefaultLatencyBuckets
}

// loadOrCreate returns the cached instrument under key, creating it with create
// on first use. Concurrent creators converge on the first stored instrument.
func loadOrCreate[T any](f *MetricsFactory, cache *sync.Map, key, kind string, create func() (T, error)) (T, error) {
	var zero T

	if cached, ok := cache.Load(key); ok {
		instrument, ok := cached.(T)
		if !ok {
			return zero, fmt.Errorf("%s cache contains invalid type for %q", kind, key)
		}

		return instrument, nil
	}

	instrument, err := create()
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create "+kind+" metric", log.String("metric_name", key), log.Err(err))

		return zero, fmt.Errorf("create %s %q: %w", kind, key, err)
	}

	actual, _ := cache.LoadOrStore(key, instrument)

	stored, ok := actual.(T)
	if !ok {
		return zero, fmt.Errorf("%s cache contains invalid type for %q", kind, key)
	}

	return stored, nil
}

// instrumentOptions narrows the shared description and unit options to the
// option type of a specific instrument kind.
func instrumentOptions[O any](m Metric) []O {
	var shared []metric.InstrumentOption

	if m.Description != "" {
		shared = append(shared, metric.WithDescription(m.Description))
	}

	if m.Unit != "" {
		shared = append(shared, metric.WithUnit(m.Unit))
	}

	opts := make([]O, 0, len(shared))

	for _, opt := range shared {
		if o, ok := any(opt).(O); ok {
			opts = append(opts, o)
		}
	}

	return opts
}

// histogramCacheKey generates a unique cache key based on name and bucket configuration.
func histogramCacheKey(name string, buckets []float64) string {
	if len(buckets) == 0 {
		return name
	}

	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	parts := make([]string, len(sorted))
	for i, b := range sorted {
		parts[i] = strconv.FormatFloat(b, 'g', -1, 64)
	}

	return name + ":" + strings.Join(parts, ",")
}
