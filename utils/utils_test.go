package utils

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newObservedLogger() (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(&buf), zap.DebugLevel)
	return zap.New(core), &buf
}

func TestLogError_WritesMessageAndFields(t *testing.T) {
	logger, buf := newObservedLogger()
	LogError(logger, errors.New("boom"), "failed to parse packet", zap.String("stream", "1"))

	out := buf.String()
	assert.Contains(t, out, "failed to parse packet")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, `"stream":"1"`)
}

func TestLogError_NilLoggerDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogError(nil, errors.New("boom"), "ignored")
	})
}

func TestRecover_SwallowsPanicAndLogs(t *testing.T) {
	logger, buf := newObservedLogger()

	func() {
		defer Recover(logger)
		panic("tick loop exploded")
	}()

	assert.Contains(t, buf.String(), "recovered from panic")
}

func TestRecover_NoPanicIsANoop(t *testing.T) {
	logger, buf := newObservedLogger()

	func() {
		defer Recover(logger)
	}()

	assert.Empty(t, buf.String())
}
