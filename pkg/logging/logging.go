package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zpam/comment-moderator/pkg/config"
)

// New builds a zap logger from the logging section. The returned close
// function flushes the logger and closes the log file, if any.
func New(cfg config.LoggingConfig) (*zap.Logger, func() error, error) {
	var out io.Writer = os.Stderr
	closeFile := func() error { return nil }

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFile = f.Close
	}

	logger := NewWithWriter(out, cfg.Format, cfg.Level)
	return logger, func() error {
		_ = logger.Sync()
		return closeFile()
	}, nil
}

// NewWithWriter builds a logger writing to out
func NewWithWriter(out io.Writer, format, level string) *zap.Logger {
	var ze zapcore.Encoder
	switch format {
	case "json":
		ze = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ze = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(ze, zapcore.AddSync(out), ParseLevel(level))
	return zap.New(core, zap.AddCaller())
}

// ParseLevel maps a config level name to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
