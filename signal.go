package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// exitInterrupted is the conventional exit status after SIGINT.
const exitInterrupted = 130

// forceExit ends the process on the second signal. Tests replace it.
var forceExit = func() { os.Exit(exitInterrupted) }

// shutdownContext derives a context that is canceled on the first SIGINT or
// SIGTERM, so an in-flight listing, callback wait or download unwinds and
// removes its temp file. A second signal calls forceExit. The returned stop
// function releases the signal handler.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("interrupted, canceling",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-done:
			return
		case <-parent.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, exiting immediately",
				slog.String("signal", sig.String()),
			)
			forceExit()
		case <-done:
		case <-parent.Done():
		}
	}()

	release := sync.OnceFunc(func() { close(done) })

	stop := func() {
		release()
		cancel()
	}

	return ctx, stop
}
