package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig controls which statements reach the log.
type QueryLogConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LogNotFound reports ErrRecordNotFound as an error. Repositories treat a
	// missing row as a nil result, so it is off by default.
	LogNotFound bool
}

// DefaultQueryLogConfig logs failed and slow statements only.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 250 * time.Millisecond,
	}
}

// QueryLogger is the gorm logger used by pkg/db. Statements are logged with
// the request's correlation fields and without bound values, so resident
// names and amounts never reach the log stream.
type QueryLogger struct {
	base *zap.Logger
	cfg  QueryLogConfig
}

// NewQueryLogger returns a QueryLogger writing to base, or to the global
// logger when base is nil.
func NewQueryLogger(base *zap.Logger, cfg QueryLogConfig) *QueryLogger {
	return &QueryLogger{base: base, cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, msg, data)
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	if errors.Is(err, gormlogger.ErrRecordNotFound) && !l.cfg.LogNotFound {
		err = nil
	}

	switch {
	case err != nil && l.cfg.Level >= gormlogger.Error:
		l.statement(ctx, fc, elapsed).Error("db.query_failed", zap.Error(err))
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		l.statement(ctx, fc, elapsed).Warn("db.query_slow",
			zap.Int64("threshold_ms", l.cfg.SlowThreshold.Milliseconds()),
		)
	case l.cfg.Level >= gormlogger.Info:
		l.statement(ctx, fc, elapsed).Debug("db.query")
	}
}

// ParamsFilter drops bound values before gorm renders the statement.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) logger(ctx context.Context) *zap.Logger {
	base := l.base
	if base == nil {
		base = zap.L()
	}
	return WithContext(ctx, base)
}

func (l *QueryLogger) message(ctx context.Context, level gormlogger.LogLevel, msg string, data []interface{}) {
	if l.cfg.Level < level {
		return
	}
	log := l.logger(ctx)
	if len(data) > 0 {
		log = log.With(zap.Any("data", data))
	}
	switch level {
	case gormlogger.Error:
		log.Error(msg)
	case gormlogger.Warn:
		log.Warn(msg)
	default:
		log.Info(msg)
	}
}

func (l *QueryLogger) statement(ctx context.Context, fc func() (string, int64), elapsed time.Duration) *zap.Logger {
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	op, table := describeStatement(sql)
	fields := []zap.Field{
		zap.String("db.operation", op),
		zap.String("db.table", table),
		zap.String("db.statement", sql),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return l.logger(ctx).With(fields...)
}

var statementTable = regexp.MustCompile(`(?i)\b(?:from|into|update|join)\s+["` + "`" + `]?([a-z_][a-z0-9_]*)`)

// describeStatement returns the leading verb of sql and the first table it
// touches, e.g. ("SELECT", "payments").
func describeStatement(sql string) (string, string) {
	op := "UNKNOWN"
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			op = token
		}
		if op != "UNKNOWN" {
			break
		}
	}
	table := ""
	if m := statementTable.FindStringSubmatch(sql); len(m) == 2 {
		table = strings.ToLower(m[1])
	}
	return op, table
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
