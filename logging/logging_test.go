package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerFormatsSortedFields(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewWriterLogger(&stdout, &stderr, false).WithFields(Fields{"component": "beat_tracker"})

	logger.Info("tempo estimated", Fields{"bpm": 120.0, "beats": 64})
	logger.Error(errors.New("silent input"), "analysis failed")

	assert.Contains(t, stdout.String(), "[INFO] tempo estimated beats=64 bpm=120 component=beat_tracker")
	assert.Contains(t, stderr.String(), "[ERROR] analysis failed: silent input component=beat_tracker")
}

func TestDefaultLoggerLevelFilter(t *testing.T) {
	var stdout bytes.Buffer
	logger := NewWriterLogger(&stdout, &stdout, false)
	logger.Debug("hidden")
	logger.SetLevel(DebugLevel)
	logger.Debug("shown")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "shown")
}

func TestContextFieldsMerge(t *testing.T) {
	ctx := ContextWithFields(context.Background(), Fields{"request_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"mode": "fast"})

	fields, ok := FieldsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, Fields{"request_id": "abc", "mode": "fast"}, fields)

	var stdout bytes.Buffer
	NewWriterLogger(&stdout, &stdout, false).WithContext(ctx).Info("start")
	assert.Contains(t, stdout.String(), "mode=fast request_id=abc")
}

func TestZapLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core)).WithFields(Fields{"component": "decoder"})

	logger.Warn("short input", Fields{"duration": 0.4})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "short input", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "decoder", ctx["component"])
	assert.Equal(t, 0.4, ctx["duration"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}
