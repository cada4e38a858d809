package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/medifusion-server/internal/app"
	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/ingest"
)

type analyzeOptions struct {
	structured string
	genomics   string
	pathology  string
	output     string
	persist    bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a CSV of patients against genomics and pathology notes",
		Long: `Analyze runs every row of the structured CSV through extraction, fusion,
prediction and reasoning, and prints the batch response as JSON. Without --structured
the built-in demo patient is analyzed.`,
		Example: `  medifusion analyze --structured patients.csv --genomics genomics.txt --pathology pathology.txt
  medifusion analyze --genomics genomics.txt --output result.json --persist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.structured, "structured", "", "structured patient CSV")
	cmd.Flags().StringVar(&opts.genomics, "genomics", "", "genomics report text file")
	cmd.Flags().StringVar(&opts.pathology, "pathology", "", "pathology report text file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write JSON here instead of stdout")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "save results to the configured store")

	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	cfg, logger, err := root.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if !opts.persist {
		cfg.Storage.Driver = domain.StorageNone
	}

	req := &domain.BatchRequest{}
	if req.Rows, err = readRows(opts.structured); err != nil {
		return err
	}
	if req.Genomics, err = readNoteFile(opts.genomics); err != nil {
		return err
	}
	if req.Pathology, err = readNoteFile(opts.pathology); err != nil {
		return err
	}

	ctx := cmd.Context()
	pipeline, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	resp, err := pipeline.Analysis.AnalyzeBatch(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeJSON(out, resp)
}

func readRows(path string) ([]domain.StructuredRow, error) {
	if path == "" {
		return []domain.StructuredRow{ingest.DemoRow()}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open structured file: %w", err)
	}
	defer f.Close()

	rows, err := ingest.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rows, nil
}

func readNoteFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open note: %w", err)
	}
	defer f.Close()
	return ingest.ReadText(f, 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
