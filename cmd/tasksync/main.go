// Package main is the entry point for the tasksync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tasksync/internal/cli"
	"tasksync/internal/commands"
)

func main() {
	// Cancel on interrupt so the shell, login and serve can stop cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, cli.DefaultServiceFactory)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
