package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used throughout flowmail-core.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// NewLogger builds the default console logger, writing RFC3339 timestamped
// JSON to stdout.
func NewLogger() Logger {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return &zerologLogger{logger: l}
}

// NewConsoleLogger builds a human-readable logger for local development,
// using zerolog's ConsoleWriter instead of raw JSON lines.
func NewConsoleLogger() Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	l := zerolog.New(writer).With().Timestamp().Logger()
	return &zerologLogger{logger: l}
}

func (l *zerologLogger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *zerologLogger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return &zerologLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}
	return &zerologLogger{logger: ctx.Logger()}
}

// NewNoop builds a Logger that discards everything, for tests that need a
// Logger value but don't want assertions on what gets logged.
func NewNoop() Logger {
	l := zerolog.New(io.Discard)
	return &zerologLogger{logger: l}
}
