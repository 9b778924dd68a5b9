package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"keepersecurity.com/iam-sync/internal/cli"
)

func main() {
	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
