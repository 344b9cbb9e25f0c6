/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/covidtrack/apiserver/config"
	"github.com/covidtrack/apiserver/internal/logging"
	"github.com/covidtrack/apiserver/internal/mq"
	"github.com/covidtrack/apiserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd tails observation change events from the configured broker.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Log observation change events from the message broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(serviceName, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		logger.Info("listening for observation events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = broker.Subscribe(ctx, cfg.MQ.Channel, func(_ context.Context, msg mq.Message) error {
			var event types.ObservationEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn("discarding malformed event", "message_id", msg.ID, "error", err)
				return nil
			}
			logger.Info("observation event",
				"message_id", msg.ID,
				"type", event.Type,
				"observation_id", event.ID,
				"country", event.Country,
				"date", event.Date,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
