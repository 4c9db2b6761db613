/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spotseeker/apiserver/config"
	"github.com/spotseeker/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect identity notifications",
}

var eventsTailChannel string

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print notifications as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		channel := eventsTailChannel
		if channel == "" {
			channel = cfg.MQ.NotificationsChannel
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer backend.Close()

		out := cmd.OutOrStdout()
		err = backend.Subscribe(ctx, channel, func(_ context.Context, msg mq.Message) error {
			_, err := fmt.Fprintf(out, "%s %s %s\n", msg.ID, msg.Attributes["event"], msg.Data)
			return err
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVarP(&eventsTailChannel, "channel", "c", "", "channel to read (defaults to NOTIFICATIONS_CHANNEL)")
}
