package raft

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
)

// Logger is the logging sink used by the core. Each raft group can be given
// its own Logger instance. Panicf must not return: it is used on
// unrecoverable internal invariant violations.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Panicf(format string, args ...interface{})
}

// zapLogger adapts a zap.SugaredLogger to the Logger interface. It is the
// default Logger used when a Config does not supply one.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger builds the default production Logger, backed by
// go.uber.org/zap, from an already-constructed *zap.Logger so that callers
// control sinks, sampling and encoding.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})    { l.s.Infof(format, args...) }
func (l *zapLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l *zapLogger) Panicf(format string, args ...interface{})   { l.s.Panicf(format, args...) }

// defaultLogger is used when no Logger is configured and the caller has not
// wired up zap explicitly: a production zap.Logger with sane defaults.
func defaultLogger() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction essentially never fails with its default config;
		// fall back to a no-op sink rather than panic from a constructor.
		return DiscardLogger{}
	}
	return NewZapLogger(z)
}

// DiscardLogger drops every message except Panicf's, which it panics with,
// since Panicf must not return. Useful in the simulation harness and in
// tests that don't care about log output.
type DiscardLogger struct{}

func (DiscardLogger) Debugf(string, ...interface{})   {}
func (DiscardLogger) Infof(string, ...interface{})    {}
func (DiscardLogger) Warningf(string, ...interface{}) {}
func (DiscardLogger) Errorf(string, ...interface{})   {}
func (DiscardLogger) Panicf(format string, args ...interface{}) {
	panic(sprintf(format, args...))
}

// TestLogger adapts a *testing.T into a Logger, routing every level to
// t.Logf so failures show up attributed to the failing test.
type TestLogger struct {
	T *testing.T
}

func (l TestLogger) Debugf(format string, args ...interface{})   { l.T.Logf(format, args...) }
func (l TestLogger) Infof(format string, args ...interface{})    { l.T.Logf(format, args...) }
func (l TestLogger) Warningf(format string, args ...interface{}) { l.T.Logf(format, args...) }
func (l TestLogger) Errorf(format string, args ...interface{})   { l.T.Logf(format, args...) }
func (l TestLogger) Panicf(format string, args ...interface{})   { l.T.Fatalf(format, args...) }

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
