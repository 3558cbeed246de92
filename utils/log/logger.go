// Package log builds the zap logger the core uses for structured,
// per-{stream,kind} error counting (spec §7) and tick-level diagnostics,
// mirroring the teacher's colored-console zap setup.
package log

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFileName = "stitcher-core.log"

// LogCfg is the zap config New built, kept around so ChangeLogLevel can
// rebuild against it without losing the rest of the configuration.
var LogCfg zap.Config

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(time.RFC3339))
}

// New builds the core's logger, writing to stdout and to logFileName, and
// returns the opened log file so callers can close it on shutdown.
func New() (*zap.Logger, *os.File, error) {
	_ = zap.RegisterEncoder("colorConsole", func(config zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return NewColor(config), nil
	})

	logFile, err := os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	LogCfg = zap.NewDevelopmentConfig()
	LogCfg.Encoding = "colorConsole"
	LogCfg.EncoderConfig.EncodeTime = customTimeEncoder
	LogCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	LogCfg.EncoderConfig.EncodeCaller = nil
	LogCfg.OutputPaths = []string{"stdout", logFileName}
	LogCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	LogCfg.DisableStacktrace = true

	logger, err := LogCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, logFile, nil
}

// ChangeLogLevel rebuilds the logger at a new level, enabling caller info
// and stacktraces at Debug the way the teacher's CLI does for `--debug`.
func ChangeLogLevel(level zapcore.Level) (*zap.Logger, error) {
	LogCfg.Level = zap.NewAtomicLevelAt(level)
	if level == zap.DebugLevel {
		LogCfg.DisableStacktrace = false
		LogCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	logger, err := LogCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
