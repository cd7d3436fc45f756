package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/vanilla/proftimers/cmd/proftimers/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
