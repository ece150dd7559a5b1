// Package zap provides the zap-backed implementation of the wallet log.Logger
// interface.
//
// New builds a JSON logger whose profile depends on the deployment
// environment, tees every entry into the OpenTelemetry log bridge, and
// appends trace_id/span_id when the context carries an active span.
package zap
