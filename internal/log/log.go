// Package log provides the structured logger used across the payment engine.
// It wraps logrus so call sites can attach contextual fields once (tenant,
// payment, saga) and have every subsequent line carry them.
package log

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// F is shorthand for a set of structured fields.
type F map[string]interface{}

// Re-exported logrus levels so call sites only import this package.
const (
	PanicLevel = logrus.PanicLevel
	FatalLevel = logrus.FatalLevel
	ErrorLevel = logrus.ErrorLevel
	WarnLevel  = logrus.WarnLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
	TraceLevel = logrus.TraceLevel
)

// Entry is a logging context that carries accumulated fields.
type Entry struct {
	logrus.Entry
}

// DefaultLogger is used by the package-level helpers and by Ctx when the
// context carries no logger. Reconfigured in cmd/root.go once the log level
// config is known.
var DefaultLogger = New()

type loggerContextKey struct{}

// New returns an Entry writing text-formatted lines to stdout at InfoLevel.
func New() *Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	return &Entry{Entry: *logrus.NewEntry(l)}
}

// Set installs e as the logger carried by the returned context.
func Set(ctx context.Context, e *Entry) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, e)
}

// Ctx returns the logger carried by ctx, or DefaultLogger.
func Ctx(ctx context.Context) *Entry {
	if e, ok := ctx.Value(loggerContextKey{}).(*Entry); ok {
		return e
	}
	return DefaultLogger
}

// WithField returns a copy of e with the field attached.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{Entry: *e.Entry.WithField(key, value)}
}

// WithFields returns a copy of e with all fields attached.
func (e *Entry) WithFields(fields F) *Entry {
	return &Entry{Entry: *e.Entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a copy of e with the error attached as a field.
func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: *e.Entry.WithError(err)}
}

// SetLevel sets the minimum level this entry's underlying logger emits.
func (e *Entry) SetLevel(level logrus.Level) {
	e.Logger.SetLevel(level)
}

// SetOutput redirects the underlying logger's output, used mostly by tests.
func (e *Entry) SetOutput(w io.Writer) {
	e.Logger.SetOutput(w)
}

// AddHook registers a logrus hook on the underlying logger.
func (e *Entry) AddHook(hook logrus.Hook) {
	e.Logger.AddHook(hook)
}

// StartTest sets the level, silences output, and captures entries emitted
// through e until the returned function is called. The returned function
// restores output and hooks and hands back the captured entries.
func (e *Entry) StartTest(level logrus.Level) func() []*logrus.Entry {
	oldHooks := e.Logger.ReplaceHooks(make(logrus.LevelHooks))
	hook := test.NewLocal(e.Logger)
	e.Logger.SetOutput(io.Discard)
	e.Logger.SetLevel(level)

	return func() []*logrus.Entry {
		entries := hook.AllEntries()
		e.Logger.ReplaceHooks(oldHooks)
		e.Logger.SetOutput(os.Stdout)
		return entries
	}
}

func SetLevel(level logrus.Level) { DefaultLogger.SetLevel(level) }

func WithField(key string, value interface{}) *Entry { return DefaultLogger.WithField(key, value) }

func WithFields(fields F) *Entry { return DefaultLogger.WithFields(fields) }

func Trace(args ...interface{}) { DefaultLogger.Trace(args...) }

func Tracef(format string, args ...interface{}) { DefaultLogger.Tracef(format, args...) }

func Debug(args ...interface{}) { DefaultLogger.Debug(args...) }

func Debugf(format string, args ...interface{}) { DefaultLogger.Debugf(format, args...) }

func Info(args ...interface{}) { DefaultLogger.Info(args...) }

func Infof(format string, args ...interface{}) { DefaultLogger.Infof(format, args...) }

func Warn(args ...interface{}) { DefaultLogger.Warn(args...) }

func Warnf(format string, args ...interface{}) { DefaultLogger.Warnf(format, args...) }

func Error(args ...interface{}) { DefaultLogger.Error(args...) }

func Errorf(format string, args ...interface{}) { DefaultLogger.Errorf(format, args...) }

func Fatal(args ...interface{}) { DefaultLogger.Fatal(args...) }

func Fatalf(format string, args ...interface{}) { DefaultLogger.Fatalf(format, args...) }

func Panicf(format string, args ...interface{}) { DefaultLogger.Panicf(format, args...) }
