package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{zap: zap.New(core), config: NewDefaultConfig()}, logs
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.DebugLevel))
	assert.False(t, logger.Enabled(TraceLevel))
}

func TestNewLoggerInvalidConfig(t *testing.T) {
	_, err := NewLogger(&Config{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, err = NewLogger(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestContextFieldsAttached(t *testing.T) {
	logger, logs := observedLogger(zapcore.InfoLevel)

	ctx := WithTaskID(context.Background(), "task-1")
	ctx = WithProvider(ctx, "filesystem")
	logger.Info(ctx, "tool call issued")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "task-1", fields["task_id"])
	assert.Equal(t, "filesystem", fields["provider"])
}

func TestNamedChild(t *testing.T) {
	logger, logs := observedLogger(zapcore.InfoLevel)

	logger.Named("coordinator").Info(context.Background(), "hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "coordinator", entries[0].LoggerName)
}

func TestTraceLevelFiltered(t *testing.T) {
	logger, logs := observedLogger(zapcore.DebugLevel)

	logger.Trace(context.Background(), "wire frame")
	assert.Zero(t, logs.Len())
}

func TestFromContext(t *testing.T) {
	base := Nop()
	ctx := WithLogger(context.Background(), base)
	assert.Same(t, base, FromContext(ctx))

	// Missing logger yields a usable nop.
	assert.NotNil(t, FromContext(context.Background()))
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("shout")
	assert.Error(t, err)
}
