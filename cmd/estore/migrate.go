package main

import (
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/estore/internal/config"
	"github.com/vasiliy-maslov/estore/internal/db"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.MigrateUp(cfg.Postgres)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.MigrateDown(cfg.Postgres, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back, 0 for all")

	cmd.AddCommand(up, down)
	return cmd
}
