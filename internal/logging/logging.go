// Package logging configures the quotedeck logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	graylog "github.com/gemnasium/logrus-graylog-hook/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log lines go.
type Options struct {
	// Level is a logrus level name ("debug", "info", ...). Empty means "info".
	Level string
	// File is an optional path for a rotating log file.
	File string
	// GraylogAddr is an optional host:port of a GELF UDP endpoint.
	GraylogAddr string
	// Output is the console writer. Defaults to os.Stderr so stdout stays clean for piping.
	Output io.Writer
}

// Logger wraps a logrus logger together with the sinks that must be closed on exit.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
	hook *graylog.GraylogHook
}

// New returns a configured logger.
func New(opts Options) (*Logger, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := &Logger{Logger: logrus.New()}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(out, l.file)
	}

	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})
	l.SetOutput(out)
	l.SetLevel(level)

	if opts.GraylogAddr != "" {
		l.hook = graylog.NewAsyncGraylogHook(opts.GraylogAddr, map[string]interface{}{"app": "quotedeck"})
		l.AddHook(l.hook)
	}
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests and quiet commands.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Close flushes the Graylog hook and closes the log file.
func (l *Logger) Close() error {
	if l.hook != nil {
		l.hook.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

type ctxKey struct{}

// WithLogger stores a log entry in ctx.
func WithLogger(ctx context.Context, entry logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// FromContext returns the entry stored by WithLogger, or fallback when none is set.
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(logrus.FieldLogger); ok {
			return entry
		}
	}
	if fallback == nil {
		return Discard()
	}
	return fallback
}
