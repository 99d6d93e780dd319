package utils

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger provides leveled logging throughout the application.
// It keeps a printf-style API on top of zerolog's console writer.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger writing to stderr at the level named by
// CARPREP_LOG_LEVEL (default "info").
func NewLogger() *Logger {
	return NewLoggerWithLevel(os.Getenv("CARPREP_LOG_LEVEL"))
}

// NewLoggerWithLevel creates a Logger writing to stderr at the given level.
// Unknown or empty levels fall back to info.
func NewLoggerWithLevel(level string) *Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}
	return newLogger(out, level)
}

// NewTestLogger returns a Logger that discards everything.
func NewTestLogger() *Logger {
	return newLogger(io.Discard, "debug")
}

func newLogger(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// SetLevel changes the minimum level that gets written.
func (l *Logger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return
	}
	l.zl = l.zl.Level(lvl)
}

func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}
