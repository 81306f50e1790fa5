// Package telemetry is the harness's structured logging and
// self-instrumentation layer: a zerolog wrapper for operator-facing
// tracing, plus a small set of Prometheus counters describing the
// harness's own behavior (rules pushed, proxy errors, checks run).
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the harness's own logging level, independent of zerolog's so
// config files don't need to name the dependency.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects console or JSON rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls Logger construction.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger is a thin structured-logging wrapper around zerolog, scoped with
// WithField/WithFields the way the rest of the harness attaches
// testid/service/endpoint context to a line.
type Logger struct {
	logger zerolog.Logger
}

// New builds a Logger from Config, defaulting to stdout/info/json.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var output io.Writer = cfg.Output
	if cfg.Format == FormatText {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339, NoColor: false}
	}

	zlog := zerolog.New(output).With().Timestamp().Logger()
	zlog = zlog.Level(levelToZerolog(cfg.Level))

	return &Logger{logger: zlog}
}

func levelToZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

// WithField returns a child Logger carrying one extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields returns a child Logger carrying several extra structured
// fields at once.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{logger: ctx.Logger()}
}

// Nop returns a Logger that discards everything, for tests and callers
// that don't care about tracing.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}
