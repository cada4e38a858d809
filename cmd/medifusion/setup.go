package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medifusion-server/internal/setup"
)

func newSetupCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create and check a local installation",
	}
	cmd.AddCommand(newSetupInitCmd(root), newSetupStatusCmd(root), newSetupValidateCmd(root))
	return cmd
}

func newSetupInitCmd(root *rootOptions) *cobra.Command {
	opts := setup.Options{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file and create the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configFile
			if path == "" {
				path = setup.DefaultConfigPath()
			}
			if _, err := setup.InitConfig(path, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default ~/.medifusion)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "storage driver: sqlite, postgres or none")
	cmd.Flags().StringVar(&opts.PostgresURL, "postgres-url", "", "PostgreSQL connection URL")
	cmd.Flags().StringVar(&opts.ModelPath, "model", "", "logistic model YAML file")
	cmd.Flags().StringVar(&opts.RemoteURL, "remote-url", "", "remote scoring endpoint")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP port (default 8080)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing config file")

	return cmd
}

func newSetupStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installation status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.readConfig()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), setup.GetStatus(cfg))
		},
	}
}

func newSetupValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, data directory and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.readConfig()
			if err != nil {
				return err
			}

			ok, issues := setup.Validate(cfg)
			out := cmd.OutOrStdout()
			for _, issue := range issues {
				fmt.Fprintf(out, "- %s\n", issue)
			}
			if !ok {
				return errors.New("setup is not valid")
			}
			fmt.Fprintln(out, "Setup is valid")
			return nil
		},
	}
}
