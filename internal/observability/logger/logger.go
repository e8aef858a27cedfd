package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/condopay/internal/observability/context"
	"github.com/smallbiznis/condopay/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the process logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	// Debug switches to a human readable console encoder with caller and
	// stack traces on warnings.
	Debug bool

	// Sampling applies per message per second. Zero values keep the
	// defaults of 100 first and every 100th after.
	SamplingInitial    int
	SamplingThereafter int
}

// New builds the root logger, installs it as the zap global and flushes it
// when the app stops.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if strings.TrimSpace(cfg.Level) == "" {
		level, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	stackLevel := zapcore.ErrorLevel
	if cfg.Debug || strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}
	if cfg.Debug {
		stackLevel = zapcore.WarnLevel
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	core = zapcore.NewSamplerWithOptions(core, time.Second,
		positiveOr(cfg.SamplingInitial, 100),
		positiveOr(cfg.SamplingThereafter, 100),
	)

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "condopay"
	}
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(stackLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(
			zap.String("service", serviceName),
			zap.String("env", strings.TrimSpace(cfg.Environment)),
			zap.String("version", strings.TrimSpace(cfg.Version)),
		),
	)
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				// Syncing a terminal stdout returns EINVAL on linux.
				_ = logger.Sync()
				return nil
			},
		})
	}
	return logger, nil
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// FromContext is WithContext on the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the request, correlation, actor and trace ids found on
// ctx to base. Ids that are not set are left out.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 7)
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	role, actorID := obscontext.ActorFromContext(ctx)
	add("request_id", obscontext.RequestIDFromContext(ctx))
	add("correlation_id", correlation.ID(ctx))
	add("actor_role", role)
	add("actor_id", actorID)
	if condominiumID, ok := obscontext.CondominiumIDFromContext(ctx); ok {
		add("actor_condominium_id", condominiumID.String())
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithSession tags a logger with the condominium and year a live session serves.
func WithSession(log *zap.Logger, condominiumID snowflake.ID, year int) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(
		zap.String("condominium_id", condominiumID.String()),
		zap.Int("year", year),
	)
}
