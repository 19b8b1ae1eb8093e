package context

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceContext identifies the request a log line or outbox event belongs to.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceKey struct{}

func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// GetTrace prefers the value set by the HTTP middleware and falls back to an
// OpenTelemetry span context, which is all worker jobs carry. Nil if neither.
func GetTrace(ctx context.Context) *TraceContext {
	if t, ok := ctx.Value(traceKey{}).(*TraceContext); ok {
		return t
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return nil
	}
	return &TraceContext{TraceID: sc.TraceID().String()}
}
