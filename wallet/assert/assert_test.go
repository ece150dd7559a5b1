//go:build unit

package assert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type captured struct {
	level  log.Level
	msg    string
	fields []log.Field
}

type captureLogger struct {
	entries []captured
}

func (c *captureLogger) Log(_ context.Context, level log.Level, msg string, fields ...log.Field) {
	c.entries = append(c.entries, captured{level: level, msg: msg, fields: fields})
}

func fieldValue(fields []log.Field, key string) any {
	for _, f := range fields {
		if f.Key == key {
			return f.Value
		}
	}

	return nil
}

func TestPassingAssertionsReturnNil(t *testing.T) {
	logger := &captureLogger{}
	a := New(logger, "ledger", "append")
	ctx := context.Background()

	assert.NoError(t, a.That(ctx, true, "unused"))
	assert.NoError(t, a.NotNil(ctx, &struct{}{}, "unused"))
	assert.NoError(t, a.NotEmpty(ctx, "local-1", "unused"))
	assert.NoError(t, a.NoError(ctx, nil, "unused"))
	assert.NoError(t, a.Equal(ctx, 300, 300, "unused"))
	assert.Empty(t, logger.entries)
}

func TestFailingAssertionReturnsAssertionError(t *testing.T) {
	logger := &captureLogger{}
	a := New(logger, "ledger", "confirm")

	err := a.That(context.Background(), false, "duplicate id in store", "id", "srv-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssertionFailed)

	var assertionErr *AssertionError
	require.ErrorAs(t, err, &assertionErr)
	assert.Equal(t, "That", assertionErr.Assertion)
	assert.Equal(t, "ledger", assertionErr.Component)
	assert.Equal(t, "confirm", assertionErr.Operation)
	assert.Equal(t, "id=srv-1", assertionErr.Details)
	assert.Equal(t, "assertion failed: duplicate id in store [id=srv-1]", err.Error())

	require.Len(t, logger.entries, 1)
	assert.Equal(t, log.LevelError, logger.entries[0].level)
	assert.True(t, strings.HasPrefix(logger.entries[0].msg, "ASSERTION FAILED: "))
	assert.Equal(t, "ledger", fieldValue(logger.entries[0].fields, "component"))
}

func TestNotNilDetectsTypedNil(t *testing.T) {
	var ptr *int
	var iface any = ptr

	err := New(nil, "", "").NotNil(context.Background(), iface, "ledger required")
	assert.ErrorIs(t, err, ErrAssertionFailed)
}

func TestEqualIncludesBothValues(t *testing.T) {
	err := New(nil, "ledger", "rescan").Equal(context.Background(), 310, 300, "running total drifted", "currency", "SMART_PAY")

	var assertionErr *AssertionError
	require.ErrorAs(t, err, &assertionErr)
	assert.Equal(t, "got=310 want=300 currency=SMART_PAY", assertionErr.Details)
}

func TestNoErrorAttachesCause(t *testing.T) {
	err := New(nil, "ledger", "append").NoError(context.Background(), errors.New("overflow"), "total update")

	var assertionErr *AssertionError
	require.ErrorAs(t, err, &assertionErr)
	assert.Contains(t, assertionErr.Details, "error=overflow")
	assert.Contains(t, assertionErr.Details, "error_type=*errors.errorString")
}

func TestNilAsserterStillFails(t *testing.T) {
	var a *Asserter

	err := a.Never(context.Background(), "unreachable")
	assert.ErrorIs(t, err, ErrAssertionFailed)

	var nilErr *AssertionError
	assert.Equal(t, "assertion failed", nilErr.Error())
}

func TestFormatPairsHandlesOddAndLongValues(t *testing.T) {
	assert.Equal(t, "key=MISSING_VALUE", formatPairs([]any{"key"}))

	long := formatPairs([]any{"note", strings.Repeat("n", maxValueLength+10)})
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
}

func TestFailureRecordsSpanEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("ledger").Start(context.Background(), "ledger.confirm")
	_ = New(nil, "ledger", "confirm").Never(ctx, "server id stored twice")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "assertion failed in ledger/confirm", spans[0].Status().Description)

	found := false
	for _, ev := range spans[0].Events() {
		if ev.Name == AssertionSpanEventName {
			found = true
		}
	}

	assert.True(t, found)
}

func TestFailureIncrementsMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	factory, err := metrics.NewMetricsFactory(mp.Meter("assert-test"), log.NewNop())
	require.NoError(t, err)

	ResetAssertionMetrics()
	InitAssertionMetrics(factory)
	t.Cleanup(ResetAssertionMetrics)

	_ = New(nil, "ledger", "append").That(context.Background(), false, "duplicate id")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != assertionFailedMetric.Name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}

	assert.Equal(t, int64(1), total)
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "assertion failed in ledger", statusMessage("ledger", ""))
	assert.Equal(t, "assertion failed in confirm", statusMessage("", "confirm"))
	assert.Equal(t, "assertion failed", statusMessage("", ""))
}
