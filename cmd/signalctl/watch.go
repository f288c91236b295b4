package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"crypto_signals_backend/services/hub"
	"crypto_signals_backend/services/wsclient"

	"github.com/spf13/cobra"
)

func watchCmd(ctx context.Context) *cobra.Command {
	var (
		url         string
		baseDelay   time.Duration
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream signals and notifications as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := wsclient.New(wsclient.Config{
				URL:         url,
				BaseDelay:   baseDelay,
				MaxAttempts: maxAttempts,
			})
			err := client.Run(ctx, printEnvelope(cmd.OutOrStdout()))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws", "signal stream URL")
	cmd.Flags().DurationVar(&baseDelay, "base-delay", wsclient.DefaultBaseDelay, "first reconnect delay, doubled per attempt")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", wsclient.DefaultMaxAttempts, "reconnect attempts before giving up")
	return cmd
}

func printEnvelope(w io.Writer) wsclient.Handler {
	return func(env hub.Envelope) {
		if env.Type == hub.TypePong {
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		fmt.Fprintln(w, string(data))
	}
}
