package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewAppliesLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(&Config{Level: tt.level, Format: "json", Output: "stdout"})
			require.NoError(t, err)
			assert.Equal(t, tt.expected == zapcore.DebugLevel, logger.Core().Enabled(zapcore.DebugLevel))
			assert.True(t, logger.Core().Enabled(zapcore.FatalLevel))
		})
	}
}

func TestNewForEnvironment(t *testing.T) {
	prod, err := NewForEnvironment("production")
	require.NoError(t, err)
	require.NotNil(t, prod)

	dev, err := NewForEnvironment("development")
	require.NoError(t, err)
	require.NotNil(t, dev)
}

func TestFileOutputFallsBackToStdout(t *testing.T) {
	logger, err := New(&Config{Level: "info", Format: "json", Output: "/nonexistent-dir/log.txt"})
	require.NoError(t, err)
	assert.NotPanics(t, func() { logger.Info("still works") })
}

func TestContextRoundTrip(t *testing.T) {
	base := zap.NewNop()

	ctx := WithContext(context.Background(), base)
	assert.Same(t, base, FromContext(ctx))

	assert.NotNil(t, FromContext(context.Background()), "missing logger yields a no-op, not nil")
}

func TestWithRequestID(t *testing.T) {
	ctx, enriched := WithRequestID(context.Background(), zap.NewNop(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Same(t, enriched, FromContext(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestWithTraceContextWithoutSpan(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithTraceContext(context.Background(), base))
}
