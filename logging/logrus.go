package logging

import (
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-identity"
	"github.com/sirupsen/logrus"
)

// Logger adapts a logrus entry to identity.Logger
type Logger struct {
	entry *logrus.Entry
}

var _ identity.Logger = (*Logger)(nil)

// New builds a logrus backed logger writing to stderr. Unknown levels fall
// back to info; format is "json" or "text".
func New(level, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit output
func NewWithWriter(out io.Writer, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(out)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &Logger{entry: logrus.NewEntry(l).WithField("component", "identity")}
}

// With returns a logger carrying an extra field
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Entry exposes the underlying logrus entry
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}
