package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Cancellation propagates down to extraction, which aborts at the next
	// page boundary.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
