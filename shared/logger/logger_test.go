package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level, format string, enableSource bool) (*Logger, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:        level,
		Format:       format,
		EnableSource: enableSource,
		TimeFormat:   time.RFC3339,
		writer:       output,
	})
	require.NoError(t, err)
	return logger, output
}

func TestNew_JSONLevelFiltering(t *testing.T) {
	tests := []struct {
		level       string
		logBelow    func(l *Logger)
		logAt       func(l *Logger)
		wantLevel   string
		wantMessage string
	}{
		{
			level:       "info",
			logBelow:    func(l *Logger) { l.Debug("below") },
			logAt:       func(l *Logger) { l.Info("info message", slog.String("type", "test")) },
			wantLevel:   "INFO",
			wantMessage: "info message",
		},
		{
			level:       "warn",
			logBelow:    func(l *Logger) { l.Info("below") },
			logAt:       func(l *Logger) { l.Warn("warn message") },
			wantLevel:   "WARN",
			wantMessage: "warn message",
		},
		{
			level:       "error",
			logBelow:    func(l *Logger) { l.Warn("below") },
			logAt:       func(l *Logger) { l.Error("error message") },
			wantLevel:   "ERROR",
			wantMessage: "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, output := newTestLogger(t, tt.level, "json", false)

			tt.logBelow(logger)
			tt.logAt(logger)

			lines := strings.Split(strings.TrimSpace(output.String()), "\n")
			require.Len(t, lines, 1, "below-threshold record must be dropped")

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantMessage, entry["msg"])
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, output := newTestLogger(t, "info", "console", false)

	logger.Info("console test")

	// tint abbreviates the level
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "console test")
}

func TestNew_SourceLocation(t *testing.T) {
	logger, output := newTestLogger(t, "info", "json", true)

	logger.Info("message with source")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	require.Contains(t, entry, "source")
	source := entry["source"].(map[string]interface{})
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestLogger_With(t *testing.T) {
	logger, output := newTestLogger(t, "info", "json", false)

	logger.With(slog.String("worker_id", "w-12")).Info("claimed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	assert.Equal(t, "w-12", entry["worker_id"])
}

func TestLogger_WithGroup(t *testing.T) {
	logger, output := newTestLogger(t, "info", "json", false)

	logger.WithGroup("job").Info("done", slog.String("id", "j-9"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	require.Contains(t, entry, "job")
	group := entry["job"].(map[string]interface{})
	assert.Equal(t, "j-9", group["id"])
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}
