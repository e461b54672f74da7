// Package main provides the entry point for the clipstitch command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/clipstitch/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
