package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/vouchdesk/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand(cli.App{Connect: cli.Connect}).ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
