/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wellspring/apiserver/config"
	"github.com/wellspring/apiserver/internal/logging"
	"github.com/wellspring/apiserver/internal/mq"
	"github.com/wellspring/apiserver/internal/services"
	"go.uber.org/zap"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with session lifecycle events",
}

var eventsConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Log session events published by the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() {
			_ = logger.Sync()
		}()

		queue, err := mq.Connect(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_DRIVER is not set")
		}
		defer queue.Close()

		channel := cfg.MQ.SessionEventChannel
		logger.Info("consuming session events", zap.String("driver", cfg.MQ.Driver), zap.String("channel", channel))

		err = queue.Subscribe(cmd.Context(), channel, func(ctx context.Context, msg mq.Message) error {
			event, err := services.DecodeSessionEvent(msg)
			if err != nil {
				// Acked and dropped.
				logger.Warn("discarding malformed session event", zap.String("message_id", msg.ID), zap.Error(err))
				return nil
			}
			logger.Info("session event",
				zap.String("message_id", msg.ID),
				zap.String("type", string(event.Type)),
				zap.String("session_id", event.SessionID),
				zap.String("owner_id", event.OwnerID),
				zap.String("title", event.Title),
				zap.Time("occurred_at", event.OccurredAt),
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
	eventsCmd.AddCommand(eventsConsumeCmd)
}
