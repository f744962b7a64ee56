package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Signal tests share the process signal handler, so they run serially.
func TestShutdownContext_SignalsCancelThenExit(t *testing.T) {
	exited := make(chan struct{})

	old := forceExit
	forceExit = func() { close(exited) }
	t.Cleanup(func() { forceExit = old })

	ctx, stop := shutdownContext(context.Background(), quietLogger())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force an exit")
	}
}

func TestShutdownContext_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	ctx, stop := shutdownContext(parent, quietLogger())
	defer stop()

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}

func TestShutdownContext_StopIsIdempotent(t *testing.T) {
	ctx, stop := shutdownContext(context.Background(), quietLogger())

	stop()
	stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
