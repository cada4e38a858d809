package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medifusion-server/internal/database"
	"github.com/medifusion-server/internal/domain"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL result store schema",
	}

	run := func(action func(cmd *cobra.Command, runner *database.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != domain.StoragePostgres {
				return fmt.Errorf("migrations require the postgres storage driver, configured: %q", cfg.Storage.Driver)
			}

			runner, err := database.NewMigrationRunner(cfg.Storage.PostgresURL, cfg.Storage.MigrationsPath, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			return action(cmd, runner)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, runner *database.MigrationRunner) error {
				return runner.Up(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, runner *database.MigrationRunner) error {
				return runner.Down(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, runner *database.MigrationRunner) error {
				status, err := runner.Status()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), status)
			}),
		},
	)

	return cmd
}
