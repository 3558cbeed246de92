// Package utils provides small cross-cutting helpers shared by every
// package in the core: context/signal wiring, panic recovery, and
// structured error logging, the way the teacher's utils package does for
// its CLI.
package utils

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var cancel context.CancelFunc

// NewCtx returns a context cancelled on SIGINT/SIGTERM — the signal
// plumbing every long-running loop in the core (the perf/ringbuf readers,
// the tick loop) derives its lifetime from.
func NewCtx() context.Context {
	ctx, c := context.WithCancel(context.Background())
	SetCancel(c)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigs
		c()
	}()

	return ctx
}

// Stop cancels the context started by NewCtx, requiring a reason so the
// caller can be traced back through logs.
func Stop(logger *zap.Logger, reason string) error {
	if logger == nil {
		return errors.New("logger is not set")
	}
	if cancel == nil {
		err := errors.New("cancel function is not set")
		LogError(logger, err, "failed stopping stitcher core")
		return err
	}
	if reason == "" {
		err := errors.New("cannot stop without a reason")
		LogError(logger, err, "failed stopping stitcher core")
		return err
	}
	logger.Info("stopping", zap.String("reason", reason))
	cancel()
	return nil
}

func SetCancel(c context.CancelFunc) {
	cancel = c
}
