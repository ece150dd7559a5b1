// Package opentelemetry initializes tracing, metrics and log export for the
// wallet module and carries the span helpers used by its components.
//
// NewTelemetry builds OTLP/gRPC providers, or in-process providers when
// telemetry is disabled. Span helpers redact credentials and account numbers
// before they reach an attribute.
package opentelemetry
