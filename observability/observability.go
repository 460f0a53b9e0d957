// Package observability defines the logging facade used by the forensic
// detectors. The library is silent by default (NopLogger); callers that want
// stage-level diagnostics inject their own Logger or the bundled TextLogger.
package observability

import (
	"fmt"
	"io"
	"sync"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type float64Field struct {
	key string
	val float64
}

func (f float64Field) Key() string        { return f.key }
func (f float64Field) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field          { return stringField{key, value} }
func Int(key string, value int) Field         { return intField{key, value} }
func Float64(key string, value float64) Field { return float64Field{key, value} }
func Error(key string, err error) Field       { return errorField{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// TextLogger writes one "LEVEL msg key=value ..." line per call to an
// io.Writer. It is safe for concurrent use; detectors may log from parallel
// goroutines.
type TextLogger struct {
	mu    *sync.Mutex
	w     io.Writer
	bound []Field
}

// NewTextLogger returns a TextLogger writing to w.
func NewTextLogger(w io.Writer) *TextLogger {
	return &TextLogger{mu: &sync.Mutex{}, w: w}
}

func (l *TextLogger) Debug(msg string, fields ...Field) { l.emit("DEBUG", msg, fields) }
func (l *TextLogger) Info(msg string, fields ...Field)  { l.emit("INFO", msg, fields) }
func (l *TextLogger) Warn(msg string, fields ...Field)  { l.emit("WARN", msg, fields) }
func (l *TextLogger) Error(msg string, fields ...Field) { l.emit("ERROR", msg, fields) }

func (l *TextLogger) With(fields ...Field) Logger {
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &TextLogger{mu: l.mu, w: l.w, bound: bound}
}

func (l *TextLogger) emit(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s %s", level, msg)
	for _, f := range l.bound {
		fmt.Fprintf(l.w, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(l.w, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(l.w)
}
