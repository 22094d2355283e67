package observability

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the engine.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Named(name string) Logger
	Sync() error
}

// Field is a typed key/value attached to a log entry.
type Field = zapcore.Field

func String(key, value string) Field               { return zap.String(key, value) }
func Int(key string, value int) Field              { return zap.Int(key, value) }
func Int64(key string, value int64) Field          { return zap.Int64(key, value) }
func Float64(key string, value float64) Field      { return zap.Float64(key, value) }
func Bool(key string, value bool) Field            { return zap.Bool(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Strings(key string, value []string) Field     { return zap.Strings(key, value) }
func Any(key string, value interface{}) Field      { return zap.Any(key, value) }
func Error(key string, err error) Field            { return zap.NamedError(key, err) }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field)    {}
func (NopLogger) Info(string, ...Field)     {}
func (NopLogger) Warn(string, ...Field)     {}
func (NopLogger) Error(string, ...Field)    {}
func (NopLogger) With(...Field) Logger      { return NopLogger{} }
func (NopLogger) Named(string) Logger       { return NopLogger{} }
func (NopLogger) Sync() error               { return nil }

// Nop returns a logger that discards everything.
func Nop() Logger { return NopLogger{} }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// Tracer provides timing hooks around pipeline stages.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a timed operation.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// LogTracer reports every finished span as a debug entry (warn when failed).
type LogTracer struct {
	Logger Logger
}

func (t LogTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &logSpan{log: OrNop(t.Logger), name: name, start: time.Now()}
}

type logSpan struct {
	log    Logger
	name   string
	start  time.Time
	fields []Field
	err    error
}

func (s *logSpan) SetTag(key string, value interface{}) { s.fields = append(s.fields, Any(key, value)) }
func (s *logSpan) SetError(err error)                   { s.err = err }

func (s *logSpan) Finish() {
	fields := append([]Field{String("span", s.name), Duration("elapsed", time.Since(s.start))}, s.fields...)
	if s.err != nil {
		s.log.Warn("span failed", append(fields, Error("error", s.err))...)
		return
	}
	s.log.Debug("span finished", fields...)
}
