// Package logger provides the structured logger used by every bootstrap component.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

var runIDKey = contextKey{}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
	Output io.Writer
}

// Logger is a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a logger for component using cfg.
func New(component string, cfg LoggingConfig) *Logger {
	l := logrus.New()

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return &Logger{Logger: l, component: component}
}

// NewDefault creates an info-level JSON logger for component.
func NewDefault(component string) *Logger {
	return New(component, LoggingConfig{Level: "info"})
}

// Named returns a logger sharing the same sink under a different component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Component returns the component name attached to every entry.
func (l *Logger) Component() string { return l.component }

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithField("component", l.component)
}

// WithField returns an entry carrying the component and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields returns an entry carrying the component and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry().WithFields(logrus.Fields(fields))
}

// WithError returns an entry carrying the component and err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// WithContext returns an entry carrying the component and the run id stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	e := l.entry().WithContext(ctx)
	if id := RunIDFromContext(ctx); id != "" {
		e = e.WithField("run_id", id)
	}
	return e
}

// Info logs at info level with the component field.
func (l *Logger) Info(args ...interface{}) { l.entry().Info(args...) }

// Warn logs at warn level with the component field.
func (l *Logger) Warn(args ...interface{}) { l.entry().Warn(args...) }

// Error logs at error level with the component field.
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }

// Debug logs at debug level with the component field.
func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }

// WithRunID stores a bootstrap run id in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id stored by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey).(string)
	return id
}
