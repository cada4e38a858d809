package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medifusion-server/internal/storage"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every stored result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.Storage, logger)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("result persistence is disabled")
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return store.ExportJSON(cmd.Context(), out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON here instead of stdout")
	return cmd
}
