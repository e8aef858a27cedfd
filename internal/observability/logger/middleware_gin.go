package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/condopay/internal/observability/context"
	"github.com/smallbiznis/condopay/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps a handler error to the type and code written in
	// the response body.
	ErrorClassifier func(err error) (string, string)
	// Quiet lists routes logged at debug level, e.g. probes and scrapes.
	Quiet []string
}

// GinMiddleware stamps request and correlation ids on the request context
// and emits one "http_request" line per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := map[string]struct{}{"/health": {}, "/metrics": {}}
	for _, route := range cfg.Quiet {
		quiet[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx, correlationID := correlation.FromRequest(ctx, c.Request.Header)
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Header(correlation.Header, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if year := c.Query("year"); year != "" {
			fields = append(fields, zap.String("year", year))
		}
		if format := c.Query("format"); format != "" {
			fields = append(fields, zap.String("format", format))
		}

		errorType := ""
		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}

		_, isQuiet := quiet[route]
		if ce := FromContext(c.Request.Context()).Check(requestLevel(status, errorType, isQuiet), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestLevel logs server faults at error level. Client validation
// mistakes and quiet routes drop to debug.
func requestLevel(status int, errorType string, quiet bool) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case quiet:
		return zapcore.DebugLevel
	case errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
