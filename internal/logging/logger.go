// Package logging provides the process-wide structured logger.
//
// It wraps go.uber.org/zap with a small global: Init configures it once from
// config.Logging, Get returns it (building a production default when Init was
// never called), and With derives run-scoped child loggers.
package logging

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// Config describes the logger to build.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Encoding is "json" or "console".
	Encoding string
	// Development enables colored levels and stack traces on errors.
	Development bool
	// OutputPaths defaults to stdout.
	OutputPaths []string
}

// Init builds a logger from cfg and installs it as the global logger.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// New builds a zap logger from cfg without installing it.
func New(cfg Config) (*zap.Logger, error) {
	lvl := cfg.Level
	if lvl == "" {
		lvl = "info"
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	enc := cfg.Encoding
	if enc == "" {
		enc = "console"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		DisableStacktrace: !cfg.Development,
		Encoding:          enc,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}
	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return l, nil
}

// Set installs l as the global logger. A nil l is ignored.
func Set(l *zap.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	global = l
	mu.Unlock()
}

// Get returns the global logger.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		if l, err := zap.NewProduction(); err == nil {
			global = l
		} else {
			global = zap.NewNop()
		}
	}
	return global
}

// With returns a child of the global logger carrying fields.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes buffered entries.
func Sync() error {
	return Get().Sync()
}
