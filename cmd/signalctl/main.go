// Command signalctl is the operator CLI for the signals backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(ctx).Execute(); err != nil {
		log.Error().Err(err).Msg("signalctl failed")
		stop()
		os.Exit(1)
	}
}
