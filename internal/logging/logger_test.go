package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestStructuredLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("optimizer").With("pass", "lazy").
		Warn(context.Background(), errors.New("no layout"), "Element skipped", "tag", "img")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "Element skipped", entry["msg"])
	assert.Equal(t, "optimizer", entry["component"])
	assert.Equal(t, "lazy", entry["pass"])
	assert.Equal(t, "img", entry["tag"])
	assert.Equal(t, "no layout", entry["error"])
}

func TestStructuredLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden debug")
	logger.Info(context.Background(), "hidden info")
	logger.Warn(context.Background(), nil, "visible warn")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
}

func TestMultiLogger(t *testing.T) {
	var a, b bytes.Buffer
	multi := NewMultiLogger(
		NewLogger(&LoggerConfig{Output: &a}),
		NewLogger(&LoggerConfig{Output: &b}),
	)

	multi.WithComponent("guard").Info(context.Background(), "session started")

	for _, out := range []string{a.String(), b.String()} {
		assert.Contains(t, out, "session started")
		assert.Contains(t, out, "component=guard")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.With("k", "v").WithComponent("x").Error(context.Background(), errors.New("boom"), "ignored")
	})
}

func TestStartOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Output: &buf})

	op := StartOperation(logger, "image_pass")
	op.End(context.Background(), "scanned", 3)

	out := buf.String()
	assert.True(t, strings.Contains(out, "operation=image_pass"))
	assert.Contains(t, out, "scanned=3")
	assert.Contains(t, out, "duration_ms=")
}
