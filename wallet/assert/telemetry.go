package assert

import (
	"context"
	"fmt"
	"sync"

	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AssertionSpanEventName is the span event emitted for failed assertions.
const AssertionSpanEventName = constant.EventAssertionFailed

var assertionFailedMetric = metrics.Metric{
	Name:        constant.MetricAssertionFailedTotal,
	Unit:        "1",
	Description: "Total number of failed assertions",
}

var (
	metricsFactory   *metrics.MetricsFactory
	metricsFactoryMu sync.RWMutex
)

// InitAssertionMetrics installs the factory used for assertion_failed_total.
// Later calls are no-ops until ResetAssertionMetrics.
func InitAssertionMetrics(factory *metrics.MetricsFactory) {
	metricsFactoryMu.Lock()
	defer metricsFactoryMu.Unlock()

	if factory == nil || metricsFactory != nil {
		return
	}

	metricsFactory = factory
}

// ResetAssertionMetrics clears the installed factory for tests.
func ResetAssertionMetrics() {
	metricsFactoryMu.Lock()
	defer metricsFactoryMu.Unlock()

	metricsFactory = nil
}

func recordAssertionMetric(ctx context.Context, component, operation, assertion string) {
	metricsFactoryMu.RLock()
	factory := metricsFactory
	metricsFactoryMu.RUnlock()

	if factory == nil {
		return
	}

	counter, err := factory.Counter(assertionFailedMetric)
	if err != nil {
		return
	}

	_ = counter.WithLabels(map[string]string{
		"component": constant.SanitizeMetricLabel(component),
		"operation": constant.SanitizeMetricLabel(operation),
		"assertion": constant.SanitizeMetricLabel(assertion),
	}).AddOne(ctx)
}

func recordAssertionToSpan(ctx context.Context, assertion, message string, stack []byte, component, operation string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(constant.AttrPrefixAssertion+"name", assertion),
		attribute.String(constant.AttrPrefixAssertion+"message", message),
	}

	if component != "" {
		attrs = append(attrs, attribute.String(constant.AttrPrefixAssertion+"component", component))
	}

	if operation != "" {
		attrs = append(attrs, attribute.String(constant.AttrPrefixAssertion+"operation", operation))
	}

	if len(stack) > 0 {
		attrs = append(attrs, attribute.String(constant.AttrPrefixAssertion+"stack", string(stack)))
	}

	span.AddEvent(AssertionSpanEventName, trace.WithAttributes(attrs...))
	span.RecordError(fmt.Errorf("%w: %s", ErrAssertionFailed, message))
	span.SetStatus(codes.Error, statusMessage(component, operation))
}

func statusMessage(component, operation string) string {
	switch {
	case component != "" && operation != "":
		return "assertion failed in " + component + "/" + operation
	case component != "":
		return "assertion failed in " + component
	case operation != "":
		return "assertion failed in " + operation
	default:
		return "assertion failed"
	}
}
