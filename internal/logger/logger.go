// Package logger wraps zap for nsboot.
//
// Informational and warning entries go to stdout, errors and above go to
// stderr, so soft failures show up next to the program output and hard
// failures on the error stream.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global = zap.NewNop()

// Config holds logger configuration
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Init initializes the global logger writing to os.Stdout and os.Stderr.
func Init(cfg Config) error {
	l, err := NewLogger(cfg, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// NewLogger creates a logger that splits entries between out and errOut.
func NewLogger(cfg Config, out, errOut io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "", "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %q", cfg.Format)
	}

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(out), low),
		zapcore.NewCore(encoder.Clone(), zapcore.AddSync(errOut), high),
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), nil
}

// customTimeEncoder formats time in RFC3339 format
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(time.RFC3339))
}

// L returns the global logger.
func L() *zap.Logger {
	return global
}

// With attaches fields to every later entry of the global logger, e.g. the
// run id and the process role.
func With(fields ...zap.Field) {
	global = global.With(fields...)
}

// Sync flushes buffered entries. Call it before exec or exit since neither
// runs deferred functions.
func Sync() {
	_ = global.Sync()
}

func Debug(msg string, fields ...zap.Field) {
	global.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	global.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	global.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	global.Error(msg, fields...)
}
