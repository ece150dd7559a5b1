package runtime

import (
	"context"
	"errors"
	"fmt"

	constant "github.com/jose254W/cards/wallet/constants"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrPanic is the sentinel recorded on spans for recovered panics.
var ErrPanic = errors.New("panic")

// PanicSpanEventName is the span event emitted for recovered panics.
const PanicSpanEventName = constant.EventPanicRecovered

const maxSpanStack = 4096

// RecordPanicToSpan records a recovered panic on the span in ctx.
func RecordPanicToSpan(ctx context.Context, panicValue any, stack []byte, name string) {
	RecordPanicToSpanWithComponent(ctx, panicValue, stack, "", name)
}

// RecordPanicToSpanWithComponent records a recovered panic on the span in ctx
// and marks the span as failed. Non-recording spans are left untouched.
func RecordPanicToSpanWithComponent(ctx context.Context, panicValue any, stack []byte, component, name string) {
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	production := IsProductionMode()

	value := formatPanicValue(panicValue)
	if production {
		value = redactedPanicMsg
	}

	attrs := []attribute.KeyValue{
		attribute.String(constant.AttrPrefixPanic+"value", value),
		attribute.String(constant.AttrPrefixPanic+"goroutine_name", name),
	}

	if component != "" {
		attrs = append(attrs, attribute.String(constant.AttrPrefixPanic+"component", component))
	}

	if len(stack) > 0 && !production {
		stackText := string(stack)
		if len(stackText) > maxSpanStack {
			stackText = stackText[:maxSpanStack]
		}

		attrs = append(attrs, attribute.String(constant.AttrPrefixPanic+"stack", stackText))
	}

	span.AddEvent(PanicSpanEventName, trace.WithAttributes(attrs...))
	span.RecordError(fmt.Errorf("%w: %s", ErrPanic, value))
	span.SetStatus(codes.Error, "panic recovered in "+name)
}
