package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/api"
	"github.com/jackzampolin/pdfocr/internal/raster"
	"github.com/jackzampolin/pdfocr/internal/recognize"
	"github.com/jackzampolin/pdfocr/internal/svcctx"
)

// checkResult is one dependency's status.
type checkResult struct {
	Name  string  `json:"name" yaml:"name"`
	OK    bool    `json:"ok" yaml:"ok"`
	Error *string `json:"error" yaml:"error"`
}

// checkReport is printed by `pdfocr check`.
type checkReport struct {
	Rasterizer checkResult `json:"rasterizer" yaml:"rasterizer"`
	Recognizer checkResult `json:"recognizer" yaml:"recognizer"`
}

func (r checkReport) ok() bool {
	return r.Rasterizer.OK && r.Recognizer.OK
}

func newCheckResult(name string, err error) checkResult {
	res := checkResult{Name: name, OK: err == nil}
	if err != nil {
		msg := err.Error()
		res.Error = &msg
	}
	return res
}

// runChecks checks the rasterizer and the configured engine without building it.
func runChecks(r raster.Rasterizer, rc recognize.Config) checkReport {
	return checkReport{
		Rasterizer: newCheckResult(r.Name(), r.Check()),
		Recognizer: newCheckResult(rc.Label(), recognize.Check(rc)),
	}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the rasterizer and recognition engine are available",
	Long: `Check verifies pdftoppm and the configured recognition engine and prints a
report. It exits 1 if either is unavailable.

Examples:
  pdfocr check
  pdfocr check --engine openai`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		cfg := svcctx.ConfigFrom(cmd.Context())

		pc := cfg.PopplerConfig(svc.Home.ScratchPath())
		pc.Logger = svc.Logger
		rep := runChecks(raster.NewPoppler(pc), cfg.RecognizeConfig())

		if err := api.Output(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
		if !rep.ok() {
			return errReported
		}
		return nil
	},
}
