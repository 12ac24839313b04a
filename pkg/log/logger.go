package log

import (
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
)

// Logger provides structured logging capabilities.
// Implementations can wrap zerolog, zap, logrus, or any other logging library.
type Logger interface {
	// Debug logs a debug-level message with fields.
	Debug(msg string, fields ...Field)

	// Info logs an info-level message with fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning-level message with fields.
	Warn(msg string, fields ...Field)

	// Error logs an error-level message with fields.
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Kind creates a "resource" field for a resource kind.
func Kind(kind domain.ResourceKind) Field {
	return Field{Key: "resource", Value: string(kind)}
}

// State creates a string field from anything with a String method,
// typically a lifecycle state or resource status.
func State(key string, s interface{ String() string }) Field {
	return Field{Key: key, Value: s.String()}
}

// Named returns a logger that tags every entry with a component name.
// Loggers that do not support scoping are wrapped.
func Named(l Logger, component string) Logger {
	if l == nil {
		return NewNoopLogger()
	}
	if z, ok := l.(*ZerologAdapter); ok {
		return z.WithComponent(component)
	}
	if _, ok := l.(*NoopLogger); ok {
		return l
	}
	return &componentLogger{next: l, component: String("component", component)}
}

// componentLogger prepends a component field to every entry.
type componentLogger struct {
	next      Logger
	component Field
}

func (c *componentLogger) Debug(msg string, fields ...Field) {
	c.next.Debug(msg, append([]Field{c.component}, fields...)...)
}

func (c *componentLogger) Info(msg string, fields ...Field) {
	c.next.Info(msg, append([]Field{c.component}, fields...)...)
}

func (c *componentLogger) Warn(msg string, fields ...Field) {
	c.next.Warn(msg, append([]Field{c.component}, fields...)...)
}

func (c *componentLogger) Error(msg string, fields ...Field) {
	c.next.Error(msg, append([]Field{c.component}, fields...)...)
}
