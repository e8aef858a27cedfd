package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/condopay/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smallbiznis/condopay/http"

// GinMiddleware opens a server span per request. The route, the condominium
// in scope and the actor role are attached once the handler chain has run,
// since authorization resolves them further down the chain.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName(c.Request.Method + " " + route)
		span.SetAttributes(requestAttributes(c, route)...)

		status := c.Writer.Status()
		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			span.RecordError(SafeError(lastErr.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func requestAttributes(c *gin.Context, route string) []attribute.KeyValue {
	ctx := c.Request.Context()
	role, _ := obscontext.ActorFromContext(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", c.Writer.Status()),
		attribute.String("actor.role", role),
		attribute.String("condopay.year", c.Query("year")),
		attribute.String("condopay.export_format", c.Query("format")),
	}
	if id := c.Param("id"); id != "" && strings.HasPrefix(route, "/api/condominiums/:id") {
		attrs = append(attrs, attribute.String("condominium.id", id))
	} else if condominiumID, ok := obscontext.CondominiumIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("condominium.id", condominiumID.String()))
	}
	if strings.HasSuffix(route, "/stream") || strings.HasSuffix(route, "/ws") {
		attrs = append(attrs, attribute.Bool("condopay.live", true))
	}
	return SafeAttributes(attrs...)
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
