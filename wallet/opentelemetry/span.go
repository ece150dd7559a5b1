package opentelemetry

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HandleSpanError marks the span failed and records err.
func HandleSpanError(span *trace.Span, message string, err error) {
	if span == nil || *span == nil || err == nil {
		return
	}

	(*span).SetStatus(codes.Error, message+": "+err.Error())
	(*span).RecordError(err)
}

// HandleSpanBusinessErrorEvent records a business rejection as an event
// without failing the span.
func HandleSpanBusinessErrorEvent(span *trace.Span, eventName string, err error) {
	if span == nil || *span == nil || err == nil {
		return
	}

	(*span).AddEvent(eventName, trace.WithAttributes(attribute.String("error", err.Error())))
}

// HandleSpanEvent adds an event to the span.
func HandleSpanEvent(span *trace.Span, eventName string, attributes ...attribute.KeyValue) {
	if span == nil || *span == nil {
		return
	}

	(*span).AddEvent(eventName, trace.WithAttributes(attributes...))
}

// SetSpanAttributesFromStruct JSON-encodes valueStruct, redacts sensitive
// fields with the default obfuscator and sets the result under key.
func SetSpanAttributesFromStruct(span *trace.Span, key string, valueStruct any) error {
	if span == nil || *span == nil {
		return nil
	}

	redacted, err := ObfuscateStruct(valueStruct, NewDefaultObfuscator())
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(redacted)
	if err != nil {
		return err
	}

	(*span).SetAttributes(attribute.String(sanitizeUTF8String(key), sanitizeUTF8String(string(encoded))))

	return nil
}

// InjectHTTPContext writes the trace context of ctx into outgoing request headers.
func InjectHTTPContext(ctx context.Context, headers propagation.TextMapCarrier) {
	if headers == nil {
		return
	}

	otel.GetTextMapPropagator().Inject(ctx, headers)
}

// ExtractHTTPContext returns the request context of c enriched with the
// trace context carried by the incoming headers.
func ExtractHTTPContext(c *fiber.Ctx) context.Context {
	carrier := propagation.MapCarrier{}

	c.Request().Header.VisitAll(func(key, value []byte) {
		carrier.Set(strings.ToLower(string(key)), string(value))
	})

	return otel.GetTextMapPropagator().Extract(c.UserContext(), carrier)
}

// GetTraceIDFromContext returns the trace id of the span in ctx, or "".
func GetTraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}

	return sc.TraceID().String()
}

func sanitizeUTF8String(s string) string {
	if !utf8.ValidString(s) {
		return strings.ToValidUTF8(s, "�")
	}

	return s
}
