//go:build unit

package log

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	NopLogger
	enabled bool
	entries []recordedEntry
}

type recordedEntry struct {
	level  Level
	msg    string
	fields []Field
}

func (r *recordingLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	r.entries = append(r.entries, recordedEntry{level: level, msg: msg, fields: fields})
}

func (r *recordingLogger) Enabled(_ Level) bool { return r.enabled }

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{input: "debug", expected: LevelDebug},
		{input: "INFO", expected: LevelInfo},
		{input: "warn", expected: LevelWarn},
		{input: "Warning", expected: LevelWarn},
		{input: " error ", expected: LevelError},
		{input: "fatal", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")

	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 3}, Int("n", 3))
	assert.Equal(t, Field{Key: "amount", Value: int64(500)}, Int64("amount", 500))
	assert.Equal(t, Field{Key: "ok", Value: true}, Bool("ok", true))
	assert.Equal(t, Field{Key: "d", Value: time.Second}, Duration("d", time.Second))
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
	assert.Equal(t, Field{Key: "any", Value: 1.5}, Any("any", 1.5))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelError, "ignored", String("k", "v"))
	})
	assert.False(t, logger.Enabled(LevelError))
	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.Same(t, logger, logger.WithGroup("group"))
	assert.NoError(t, logger.Sync(context.Background()))
}

func TestSafeError(t *testing.T) {
	t.Parallel()

	t.Run("logs full error outside production", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{enabled: true}
		SafeError(logger, context.Background(), "remote failed", errors.New("dial tcp: refused"), false)

		require.Len(t, logger.entries, 1)
		assert.Equal(t, LevelError, logger.entries[0].level)
		assert.Equal(t, "error", logger.entries[0].fields[0].Key)
	})

	t.Run("logs only the type in production", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{enabled: true}
		SafeError(logger, context.Background(), "remote failed", errors.New("secret"), true)

		require.Len(t, logger.entries, 1)
		assert.Equal(t, "error_type", logger.entries[0].fields[0].Key)
		assert.Equal(t, "*errors.errorString", logger.entries[0].fields[0].Value)
	})

	t.Run("skips nil error and disabled logger", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{enabled: true}
		SafeError(logger, context.Background(), "msg", nil, false)
		assert.Empty(t, logger.entries)

		disabled := &recordingLogger{enabled: false}
		SafeError(disabled, context.Background(), "msg", errors.New("x"), false)
		assert.Empty(t, disabled.entries)

		assert.NotPanics(t, func() { SafeError(nil, context.Background(), "msg", errors.New("x"), false) })
	})
}

func TestSanitizeExternalResponse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "remote payments service returned status 502", SanitizeExternalResponse(502))
}
