// Package logger is the zap-based structured logger shared by the server, the
// worker and the migrate tool.
package logger

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

// Logger is a zap.SugaredLogger that knows how to pick request fields out of a context.
type Logger struct {
	*zap.SugaredLogger
}

// Config selects level and encoding. Development switches to a coloured console
// encoder; production writes JSON.
type Config struct {
	Level       string
	Development bool
	OutputPaths []string
}

func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z.Sugar()}, nil
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var fallback atomic.Pointer[Logger]

// SetDefault installs the logger used when a context carries none.
func SetDefault(l *Logger) {
	fallback.Store(l)
}

func defaultLogger() *Logger {
	if l := fallback.Load(); l != nil {
		return l
	}
	z, err := zap.NewProduction(zap.AddCallerSkip(1))
	if err != nil {
		return NewNop()
	}
	l := &Logger{z.Sugar()}
	if fallback.CompareAndSwap(nil, l) {
		return l
	}
	return fallback.Load()
}

// WithContext adds trace, tenant and user fields when ctx has them.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []any
	if t := appctx.GetTrace(ctx); t != nil {
		fields = append(fields, "trace_id", t.TraceID)
		if t.RequestID != "" {
			fields = append(fields, "request_id", t.RequestID)
		}
	}
	if s := appctx.GetScope(ctx); s != nil {
		if !id.IsNil(s.TenantID) {
			fields = append(fields, "tenant_id", s.TenantID.String())
		}
		if s.UserID != "" {
			fields = append(fields, "user_id", s.UserID)
		}
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(fields...)}
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// WithComponent tags every line with component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

type ctxKey struct{}

// WithLogger stores l in ctx for the package-level helpers below.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx (or the default) with request fields attached.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	if !ok {
		l = defaultLogger()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, kv ...any) { FromContext(ctx).Debugw(msg, kv...) }
func Info(ctx context.Context, msg string, kv ...any)  { FromContext(ctx).Infow(msg, kv...) }
func Warn(ctx context.Context, msg string, kv ...any)  { FromContext(ctx).Warnw(msg, kv...) }
func Error(ctx context.Context, msg string, kv ...any) { FromContext(ctx).Errorw(msg, kv...) }
