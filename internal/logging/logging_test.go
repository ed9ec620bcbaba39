package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("json", "info", &buf)

	logger.Debug("hidden")
	logger.Info("call finished", "provider", "openai")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "call finished", record["msg"])
	assert.Equal(t, "openai", record["provider"])
	assert.Equal(t, "INFO", record["level"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New("text", "debug", &buf)
	logger.Debug("call state", "to", "streaming")

	out := buf.String()
	assert.Contains(t, out, "call state")
	assert.Contains(t, out, "to=streaming")
	// a buffer is not a terminal, so no escape codes
	assert.NotContains(t, out, "\033[")
}

func TestNew_AutoFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	New("auto", "", &buf).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))

	buf.Reset()
	New("", "", &buf).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
