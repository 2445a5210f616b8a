package evlog

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

type holder struct {
	Logger
}

var logger atomic.Value

func init() {
	logger.Store(holder{NewNop()})
}

// SetLogger replaces the process default returned by Default. Loops pick it
// up at construction unless given their own.
func SetLogger(l Logger) {
	if l == nil {
		l = NewNop()
	}
	logger.Store(holder{l})
}

func Default() Logger {
	return logger.Load().(holder).Logger
}

func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}

func New(level logrus.Level) Logger {
	l := logrus.New()
	l.SetLevel(level)
	return FromLogrus(l)
}

func NewDebugLogger() Logger {
	return New(logrus.DebugLevel)
}

func FromLogrus(l *logrus.Logger) Logger {
	return &stdLogger{entry: logrus.NewEntry(l)}
}

type stdLogger struct {
	entry *logrus.Entry
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *stdLogger) WithField(key string, value interface{}) Logger {
	return &stdLogger{entry: l.entry.WithField(key, value)}
}

func NewNop() Logger {
	return noneLogger{}
}

type noneLogger struct{}

func (noneLogger) Debugf(format string, args ...interface{}) {}

func (noneLogger) Infof(format string, args ...interface{}) {}

func (noneLogger) Warnf(format string, args ...interface{}) {}

func (noneLogger) Errorf(format string, args ...interface{}) {}

func (n noneLogger) WithField(key string, value interface{}) Logger { return n }
