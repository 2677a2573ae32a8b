package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)

	ctxErr := ctx.Err()
	stop()

	if err != nil {
		if ctxErr != nil {
			os.Exit(exitINT)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	if ctxErr != nil {
		os.Exit(exitINT)
	}
}

// exitCode maps an error to the process exit code bgo reports: 0 for
// success, 1 for any failure (bind/connect errors and usage errors alike).
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	return exitConnection
}
