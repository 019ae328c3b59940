package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/estore/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "estore",
		Short:         "Storefront and back-office API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.NewConfig(configPath)
			if err != nil {
				setupLogger("estore", "development", "info")
				log.Error().Err(err).Msg("Failed to load config")
				return err
			}
			*cfg = *loaded

			setupLogger(cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (overrides CONFIG_FILE)")

	root.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newNotifyCmd(cfg),
	)

	return root
}

func setupLogger(service, env, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.With().Str("service", service).Logger()
}
