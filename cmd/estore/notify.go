package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/estore/internal/config"
	"github.com/vasiliy-maslov/estore/internal/events"
)

func newNotifyCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Consume order events and send customer notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("KAFKA_BROKERS is required for the notifier")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().
				Strs("brokers", cfg.Kafka.Brokers).
				Str("topic", cfg.Kafka.Topic).
				Str("group_id", cfg.Kafka.GroupID).
				Msg("Notifier starting")

			reader := events.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
			if err := events.NewNotifier(reader).Run(ctx); err != nil {
				log.Error().Err(err).Msg("Notifier stopped with error")
				return err
			}

			log.Info().Msg("Notifier stopped")
			return nil
		},
	}
}
