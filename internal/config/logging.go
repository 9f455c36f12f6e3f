package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "warn", "warning":
		return LogLevelWarn
	case "info":
		return LogLevelInfo
	case "debug", "trace":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelOff:
		return zerolog.Disabled
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Logger writes structured JSON logs to a file and, when a console is
// attached, human-readable lines to it.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	file     *os.File
	filePath string
	console  io.Writer
	zl       zerolog.Logger
}

// NewLogger creates a new logger writing to filePath. An empty path or
// LogLevelOff produces a logger that discards everything.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	logger := &Logger{level: level, filePath: filePath}

	if level != LogLevelOff && filePath != "" {
		filePath = ExpandHome(filePath)
		if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
			return nil, err
		}

		// #nosec G304 -- log file path is from validated config
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		logger.file = f
		logger.filePath = filePath
	}

	logger.rebuild()
	return logger, nil
}

// WithConsole also writes log lines to w in console format.
func (l *Logger) WithConsole(w io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
	l.rebuildLocked()
	return l
}

func (l *Logger) rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuildLocked()
}

func (l *Logger) rebuildLocked() {
	var writers []io.Writer
	if l.file != nil {
		writers = append(writers, l.file)
	}
	if l.console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: l.console, TimeFormat: "15:04:05"})
	}

	if l.level == LogLevelOff || len(writers) == 0 {
		l.zl = zerolog.Nop()
		return
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	l.zl = zerolog.New(out).Level(l.level.zerolog()).With().Timestamp().Logger()
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.rebuildLocked()
		return err
	}
	return nil
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuildLocked()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Path returns the log file path, or "" when not logging to a file.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

// Zerolog returns the structured logger for component loggers.
func (l *Logger) Zerolog() *zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	zl := l.zl
	return &zl
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	zl := l.Zerolog()
	zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	zl := l.Zerolog()
	zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Writer returns an io.Writer that logs each write at level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	zl := w.logger.Zerolog()
	zl.WithLevel(w.level.zerolog()).Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff, zl: zerolog.Nop()}
}
