package utils

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// LogError logs err with the given message and any extra structured
// fields, the way the teacher's utils.LogError wraps every recoverable
// parsing/ingest failure across the core rather than bubbling raw errors
// up through return values only.
func LogError(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(msg, allFields...)
}

// Recover logs and swallows a panic inside a goroutine, matching the
// teacher's convention of `defer utils.Recover(logger)` at the top of
// every errgroup.Go closure (the perf/ringbuf reader loops) so one bad
// event never takes the whole process down.
func Recover(logger *zap.Logger) {
	if r := recover(); r != nil {
		if logger != nil {
			logger.Error("recovered from panic", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
		}
	}
}
