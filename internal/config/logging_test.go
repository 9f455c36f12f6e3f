package config_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/config"
)

func readLogFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path) //nolint:gosec // G304: Test path from t.TempDir()
	require.NoError(t, err)
	return string(content)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected config.LogLevel
	}{
		{"off lowercase", "off", config.LogLevelOff},
		{"off uppercase", "OFF", config.LogLevelOff},
		{"none", "none", config.LogLevelOff},
		{"error", "error", config.LogLevelError},
		{"warn", "warn", config.LogLevelWarn},
		{"warning", "Warning", config.LogLevelWarn},
		{"info", "info", config.LogLevelInfo},
		{"debug uppercase", "DEBUG", config.LogLevelDebug},
		{"with whitespace", "  debug  ", config.LogLevelDebug},
		{"invalid returns error", "invalid", config.LogLevelError},
		{"empty returns error", "", config.LogLevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, config.ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	t.Parallel()
	for _, level := range []config.LogLevel{config.LogLevelOff, config.LogLevelError, config.LogLevelWarn, config.LogLevelInfo, config.LogLevelDebug} {
		assert.Equal(t, level, config.ParseLogLevel(level.String()))
	}
	assert.Equal(t, "error", config.LogLevel(99).String())
}

func TestNewLogger_LevelOff(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := config.NewLogger(config.LogLevelOff, logPath)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	assert.Equal(t, config.LogLevelOff, logger.Level())
	logger.Error("never written")
	_, err = os.Stat(logPath)
	assert.True(t, os.IsNotExist(err))
}

func TestNewLogger_EmptyPath(t *testing.T) {
	t.Parallel()
	logger, err := config.NewLogger(config.LogLevelDebug, "")
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Debug("test message")
	logger.Error("test error")
	assert.Empty(t, logger.Path())
}

func TestNewLogger_WritesJSON(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "subdir", "test.log")

	logger, err := config.NewLogger(config.LogLevelDebug, logPath)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Debug("scanned %d addresses", 41)
	logger.Error("query failed: %s", "timeout")

	lines := strings.Split(strings.TrimSpace(readLogFile(t, logPath)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "scanned 41 addresses", entry["message"])
	assert.Contains(t, entry, "time")

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "error", entry["level"])
}

func TestNewLogger_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := config.NewLogger(config.LogLevelDebug, "/proc/nonexistent/test.log")
	assert.Error(t, err)
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, err := config.NewLogger(config.LogLevelError, logPath)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	logger.Debug("debug message")
	logger.Error("error message")

	content := readLogFile(t, logPath)
	assert.NotContains(t, content, "debug message")
	assert.Contains(t, content, "error message")

	logger.SetLevel(config.LogLevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, readLogFile(t, logPath), "now visible")
}

func TestLogger_ZerologComponent(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, err := config.NewLogger(config.LogLevelInfo, logPath)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	component := logger.Zerolog().With().Str("component", "discovery").Logger()
	component.Info().Int("scanned", 3).Msg("chain done")
	component.Debug().Msg("filtered out")

	content := readLogFile(t, logPath)
	assert.Contains(t, content, `"component":"discovery"`)
	assert.Contains(t, content, `"scanned":3`)
	assert.NotContains(t, content, "filtered out")
}

func TestLogger_WithConsole(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	logger, err := config.NewLogger(config.LogLevelInfo, "")
	require.NoError(t, err)
	logger.WithConsole(&buf)

	zl := logger.Zerolog()
	zl.Info().Str("txid", "abc").Msg("transaction broadcast")

	out := buf.String()
	assert.Contains(t, out, "transaction broadcast")
	assert.Contains(t, out, "txid=")
	assert.NotContains(t, out, "{")
}

func TestLogger_Writer(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, err := config.NewLogger(config.LogLevelDebug, logPath)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	n, err := logger.Writer(config.LogLevelInfo).Write([]byte("  via writer \n"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)
	assert.Contains(t, readLogFile(t, logPath), `"message":"via writer"`)
}

func TestNullLogger(t *testing.T) {
	t.Parallel()
	logger := config.NullLogger()
	assert.Equal(t, config.LogLevelOff, logger.Level())

	logger.Debug("test debug")
	logger.Error("test error")
	logger.Zerolog().Error().Msg("discarded")
	assert.NoError(t, logger.Close())
}

func TestLogger_Concurrent(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, err := config.NewLogger(config.LogLevelDebug, logPath)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Debug("worker %d", i)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(readLogFile(t, logPath)), "\n")
	assert.Len(t, lines, 10)
}
