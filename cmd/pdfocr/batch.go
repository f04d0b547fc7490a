package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/api"
	"github.com/jackzampolin/pdfocr/internal/parse"
	"github.com/jackzampolin/pdfocr/internal/svcctx"
)

var batchRecursive bool

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Parse every PDF in a directory",
	Long: `Parse every PDF in a directory and print a JSON array with one result
document per file.

Files are ordered by directory, then by numeric suffix (scan-2.pdf before
scan-10.pdf). Subdirectories are included unless batch.recursive is false.
The command exits 1 if any document failed.

Examples:
  pdfocr batch ./scans
  pdfocr batch --recursive=false ./scans`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		cfg := svc.Config()

		recursive := cfg.Batch.Recursive
		if cmd.Flags().Changed("recursive") {
			recursive = batchRecursive
		}

		p, err := newPipeline(svc, cfg)
		if err != nil {
			return reportAll(cmd.OutOrStdout(), []parse.Outcome{parse.FailedWithoutFile(parse.NewMissingDependencyError(err))})
		}
		defer p.Close()

		return reportAll(cmd.OutOrStdout(), p.parser.ParseDirectory(cmd.Context(), args[0], recursive))
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchRecursive, "recursive", true, "descend into subdirectories (overrides batch.recursive)")
}

// reportAll prints outcomes as one array and fails if any of them failed.
func reportAll(w io.Writer, outcomes []parse.Outcome) error {
	if err := api.Output(w, parse.Documents(outcomes)); err != nil {
		return err
	}
	if !parse.AllOK(outcomes) {
		return errReported
	}
	return nil
}
