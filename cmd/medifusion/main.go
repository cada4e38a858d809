// Command medifusion runs batch analyses, schema migrations and installation checks
// from the command line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medifusion-server/internal/config"
	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/logging"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "medifusion",
		Short: "Multimodal clinical risk analysis",
		Long: `medifusion fuses structured patient rows with genomics and pathology notes,
scores them with the configured predictor and prints a clinical analysis per patient.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default searches ./config.yaml, ./config, /etc/medifusion)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts),
		newExportCmd(opts),
		newMigrateCmd(opts),
		newSetupCmd(opts),
	)

	return rootCmd
}

// readConfig reads configuration without validating it.
func (o *rootOptions) readConfig() (*domain.Config, error) {
	manager, err := config.NewManager(o.configFile)
	if err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// load reads and validates configuration and builds a logger writing to stderr.
func (o *rootOptions) load(stderr io.Writer) (*domain.Config, *logrus.Logger, error) {
	cfg, err := o.readConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, logging.NewWithWriter(cfg.Logging, stderr), nil
}
