//go:build unit

package zap

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logpkg "github.com/jose254W/cards/wallet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return NewFromCore(core), observed
}

func newBufferedLogger(level zapcore.Level) (*Logger, *strings.Builder) {
	buf := &strings.Builder{}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(buf), level)

	return NewFromCore(core), buf
}

func TestLoggerNilReceiverFallsBackToNop(t *testing.T) {
	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Log(context.Background(), logpkg.LevelInfo, "message")
		nilLogger.Info("message")
	})
}

func TestLogDispatchesLevels(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "debug message")
	logger.Log(ctx, logpkg.LevelInfo, "deposit submitted", logpkg.String("operation_id", "local-1"), logpkg.Int64("amount", 500))
	logger.Log(ctx, logpkg.LevelWarn, "balance drift")
	logger.Log(ctx, logpkg.LevelError, "remote failed", logpkg.Err(errors.New("boom")))

	entries := observed.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "local-1", entries[1].ContextMap()["operation_id"])
	assert.Equal(t, int64(500), entries[1].ContextMap()["amount"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogAppendsTraceCorrelation(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "wallet.deposit")
	defer span.End()

	logger.Log(ctx, logpkg.LevelInfo, "traced")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0].ContextMap()["span_id"])
}

func TestWithAddsFieldsWithoutMutatingParent(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	child := logger.With(logpkg.String("account_id", "acc-1"))

	logger.Log(context.Background(), logpkg.LevelInfo, "parent")
	child.Log(context.Background(), logpkg.LevelInfo, "child")

	entries := observed.All()
	require.Len(t, entries, 2)

	_, parentHasAccount := entries[0].ContextMap()["account_id"]
	assert.False(t, parentHasAccount)
	assert.Equal(t, "acc-1", entries[1].ContextMap()["account_id"])
}

func TestWithGroupNestsFields(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.WithGroup("ledger").Log(context.Background(), logpkg.LevelInfo, "grouped", logpkg.Int("records", 3))

	entries := observed.All()
	require.Len(t, entries, 1)

	group, ok := entries[0].ContextMap()["ledger"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), group["records"])
}

func TestEnabledFollowsCoreLevel(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestSyncRespectsCancelledContext(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.DebugLevel)

	assert.NoError(t, logger.Sync(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, logger.Sync(ctx), context.Canceled)
}

func TestMessageControlCharactersAreEscaped(t *testing.T) {
	logger, buf := newBufferedLogger(zapcore.DebugLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "legit\n{\"level\":\"error\",\"msg\":\"forged\"}")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
}

func TestFieldHelpers(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	logger.Info("helpers", String("s", "value"), Int64("i", 42), Duration("d", 2*time.Second))

	entries := observed.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()

	assert.Equal(t, "value", ctx["s"])
	assert.Equal(t, int64(42), ctx["i"])
	assert.Equal(t, 2*time.Second, ctx["d"])
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing library name",
			cfg:     Config{Environment: EnvironmentLocal},
			wantErr: "OTelLibraryName is required",
		},
		{
			name:    "unknown environment",
			cfg:     Config{Environment: "mars", OTelLibraryName: "wallet"},
			wantErr: "invalid environment",
		},
		{
			name:    "invalid level",
			cfg:     Config{Environment: EnvironmentProduction, OTelLibraryName: "wallet", Level: "loud"},
			wantErr: "invalid level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewResolvesLevelByEnvironment(t *testing.T) {
	logger, level, err := New(Config{Environment: EnvironmentLocal, OTelLibraryName: "wallet"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.Equal(t, zapcore.DebugLevel, logger.Level().Level())

	_, level, err = New(Config{Environment: EnvironmentProduction, OTelLibraryName: "wallet"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level.Level())

	_, level, err = New(Config{Environment: EnvironmentStaging, OTelLibraryName: "wallet", Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}
