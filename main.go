package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	ctx, stop := shutdownContext(context.Background(), slog.Default())

	err := newRootCmd().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil

	stop()

	if err != nil {
		if interrupted && errors.Is(err, context.Canceled) {
			os.Exit(exitInterrupted)
		}

		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
