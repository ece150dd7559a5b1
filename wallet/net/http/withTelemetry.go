package http

import (
	"fmt"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/jose254W/cards/wallet"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/opentelemetry/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithTelemetry opens a server span per request, parented on the trace
// context already in the user context, and stores tracer and metrics factory
// for handlers. A nil tracer falls back to the global one. Paths listed in
// excluded are not traced.
func WithTelemetry(tracer trace.Tracer, factory *metrics.MetricsFactory, excluded ...string) fiber.Handler {
	if tracer == nil {
		tracer = otel.Tracer(constant.TelemetrySDKName)
	}

	return func(c *fiber.Ctx) error {
		if slices.Contains(excluded, c.Path()) {
			return c.Next()
		}

		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.request.method", c.Method()),
			attribute.String("url.path", c.Path()),
			attribute.String("user_agent.original", c.Get(constant.HeaderUserAgent)),
			attribute.String(constant.AttrPrefixAppRequest+"request_id", wallet.HeaderIDFromContext(ctx)),
		)

		ctx = wallet.ContextWithTracer(ctx, tracer)
		if factory != nil {
			ctx = wallet.ContextWithMetricFactory(ctx, factory)
		}

		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.Int("http.response.status_code", status),
		)

		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}

		return err
	}
}
