// Package log provides scoped structured logging on top of zerolog.
package log

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

//nolint:gochecknoglobals
var baseLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitGlobals configures the process-wide base logger and returns it.
func InitGlobals(level zerolog.Level, json, noColor bool) Logger {
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	if json {
		baseLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		writer := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.DateTime,
			NoColor:    noColor,
		}
		baseLogger = zerolog.New(writer).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &baseLogger

	return Logger{zl: baseLogger}
}

// Logger is a scoped logger.
type Logger struct {
	zl zerolog.Logger
}

// New returns a logger scoped with the given name.
func New(scope string) Logger {
	return Logger{zl: baseLogger.With().Str("s", scope).Logger()}
}

// Ctx returns the logger attached to the context, or the base logger.
func Ctx(ctx context.Context) Logger {
	return Logger{zl: *zerolog.Ctx(ctx)}
}

// WithContext returns a copy of ctx carrying the logger.
func (l Logger) WithContext(ctx context.Context) context.Context {
	return l.zl.WithContext(ctx)
}

// Field attaches a typed attribute to a logger via [Logger.With].
type Field func(zerolog.Context) zerolog.Context

// Str returns a string field.
func Str(key, val string) Field {
	return func(c zerolog.Context) zerolog.Context { return c.Str(key, val) }
}

// Int64 returns an int64 field.
func Int64(key string, val int64) Field {
	return func(c zerolog.Context) zerolog.Context { return c.Int64(key, val) }
}

// Count returns a document count field.
func Count(val int64) Field {
	return func(c zerolog.Context) zerolog.Context { return c.Int64("count", val) }
}

// Elapsed returns an elapsed duration field.
func Elapsed(dur time.Duration) Field {
	return func(c zerolog.Context) zerolog.Context { return c.Dur("elapsed", dur) }
}

// NS returns a namespace field in db.collection form.
func NS(db, coll string) Field {
	return func(c zerolog.Context) zerolog.Context { return c.Str("ns", db+"."+coll) }
}

// With returns a logger with the given fields attached.
func (l Logger) With(fields ...Field) Logger {
	c := l.zl.With()
	for _, f := range fields {
		c = f(c)
	}

	return Logger{zl: c.Logger()}
}

func (l Logger) Trace(msg string) {
	l.zl.Trace().Msg(msg)
}

func (l Logger) Debug(msg string) {
	l.zl.Debug().Msg(msg)
}

func (l Logger) Debugf(format string, vals ...any) {
	l.zl.Debug().Msgf(format, vals...)
}

func (l Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

func (l Logger) Infof(format string, vals ...any) {
	l.zl.Info().Msgf(format, vals...)
}

func (l Logger) Warn(msg string) {
	l.zl.Warn().Msg(msg)
}

func (l Logger) Warnf(format string, vals ...any) {
	l.zl.Warn().Msgf(format, vals...)
}

func (l Logger) Error(err error, msg string) {
	l.zl.Error().Err(err).Msg(msg)
}

func (l Logger) Errorf(err error, format string, vals ...any) {
	l.zl.Error().Err(err).Msgf(format, vals...)
}

func (l Logger) Fatal(err error, msg string) {
	l.zl.Fatal().Err(err).Msg(msg)
}
