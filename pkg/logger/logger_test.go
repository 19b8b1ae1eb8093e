package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestFromContextAddsRequestFields(t *testing.T) {
	l, logs := observed()
	tenant := id.New()

	ctx := WithLogger(context.Background(), l)
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithScope(ctx, &appctx.Scope{TenantID: tenant, UserID: "clerk"})

	Info(ctx, "movement recorded", "movement_id", "m-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, tenant.String(), fields["tenant_id"])
	assert.Equal(t, "clerk", fields["user_id"])
	assert.Equal(t, "m-1", fields["movement_id"])
}

func TestWithContextWithoutValuesIsIdentity(t *testing.T) {
	l, _ := observed()
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestWithComponent(t *testing.T) {
	l, logs := observed()
	l.WithComponent("worker").Warnw("lock busy")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "worker", logs.All()[0].ContextMap()["component"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
}
