// Package logger is the service's zap wrapper. It carries request-scoped
// fields from the context and, when enabled, masks address text before it
// reaches any sink.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/banking/address-service/internal/pkg/tracer"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// SessionKey is the context key for the form session that owns an engine
	SessionKey ContextKey = "form_session"
)

// Logger embeds zap.Logger, so the level methods are zap's own. Masking
// happens in the core.
type Logger struct {
	*zap.Logger
	withRequestID bool
}

// Config for logger initialization
type Config struct {
	Level           string
	Format          string // "json" or "console"
	OutputPath      string
	EnablePIIMask   bool
	EnableRequestID bool
}

func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.OutputPath != "" && cfg.OutputPath != "stdout" {
		zapCfg.OutputPaths = []string{cfg.OutputPath}
	}
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	base, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return wrap(base, cfg.EnablePIIMask, cfg.EnableRequestID), nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// FromZap wraps an existing zap logger, typically an observer in tests
func FromZap(l *zap.Logger, maskPII bool) *Logger {
	return wrap(l, maskPII, true)
}

func wrap(l *zap.Logger, maskPII, withRequestID bool) *Logger {
	if maskPII {
		l = l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return maskingCore{Core: c}
		}))
	}
	return &Logger{Logger: l, withRequestID: withRequestID}
}

// WithContext adds request_id, form_session and trace_id when the context
// carries them
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []zap.Field
	if l.withRequestID {
		if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
			fields = append(fields, RequestID(id))
		}
	}
	if session, ok := ctx.Value(SessionKey).(string); ok && session != "" {
		fields = append(fields, zap.String("form_session", session))
	}
	if traceID := tracer.TraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), withRequestID: l.withRequestID}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), withRequestID: l.withRequestID}
}
