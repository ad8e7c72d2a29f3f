// Package logging provides the Logger interface used across the batch
// worker, pipeline and CLI, backed by zap.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger takes a message followed by alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New builds a production zap logger at level (debug, info, warn, error).
func New(level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewTo builds a JSON logger at level writing to w.
func NewTo(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// ParseLevel maps a level name to a zap level; empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

type sugar struct{ s *zap.SugaredLogger }

// Sugar adapts a zap logger to Logger.
func Sugar(l *zap.Logger) Logger {
	if l == nil {
		return Noop()
	}
	return sugar{s: l.Sugar()}
}

func (l sugar) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l sugar) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l sugar) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l sugar) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Noop discards everything.
func Noop() Logger { return noopLogger{} }
