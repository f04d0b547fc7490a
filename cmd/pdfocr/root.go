package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/api"
	"github.com/jackzampolin/pdfocr/internal/config"
	"github.com/jackzampolin/pdfocr/internal/home"
	"github.com/jackzampolin/pdfocr/internal/parse"
	"github.com/jackzampolin/pdfocr/internal/svcctx"
	"github.com/jackzampolin/pdfocr/version"
)

// errReported marks a failure whose result document was already printed.
var errReported = errors.New("failure reported")

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
	engineName   string
	dpi          int
)

var rootCmd = &cobra.Command{
	Use:   "pdfocr [flags] <pdf_file_path>",
	Short: "Extract text from PDFs with OCR",
	Long: `pdfocr renders each page of a PDF to an image, runs OCR over it and prints
a single JSON document with the text, bounding boxes and confidences.

Rendering uses pdftoppm (poppler-utils). Recognition engines:
  - tesseract   local Tesseract (build with -tags ocr)
  - paddle      a PaddleOCR serving endpoint
  - openai      an OpenAI-compatible vision model

Examples:
  pdfocr report.pdf                   # Parse one file
  pdfocr --engine paddle scan.pdf     # Use a PaddleOCR server
  pdfocr batch ./inbox                # Parse a directory
  pdfocr watch ./inbox                # Parse files as they arrive

The default engine is tesseract, which is only available in binaries built
with -tags ocr. Other builds report a missing dependency until another engine
is selected with --engine or recognizer.engine.`,
	Version:       version.GitRelease,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		api.SetOutputFormat(outputFormat)

		svc, err := setup(cmd)
		if err != nil {
			// the parse command promises a result document even for setup failures
			if !cmd.HasParent() {
				return report(cmd.OutOrStdout(), parse.FailedWithoutFile(parse.NewProcessingError(err)))
			}
			return err
		}
		cmd.SetContext(svcctx.WithServices(cmd.Context(), svc))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := svcctx.ServicesFrom(cmd.Context())
		out := cmd.OutOrStdout()

		p, err := newPipeline(svc, svc.Config())
		if err != nil {
			return report(out, parse.FailedWithoutFile(parse.NewMissingDependencyError(err)))
		}
		defer p.Close()

		if len(args) == 0 {
			return report(out, parse.FailedWithoutFile(parse.NewMissingArgumentError()))
		}
		return report(out, p.parser.Parse(cmd.Context(), args[0]))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.pdfocr/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "pdfocr home directory (default: ~/.pdfocr)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "json", "output format: json or yaml",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log_level)",
	)
	rootCmd.PersistentFlags().StringVar(
		&engineName, "engine", "", "recognition engine: tesseract, paddle or openai (overrides recognizer.engine)",
	)
	rootCmd.PersistentFlags().IntVar(
		&dpi, "dpi", 0, "render resolution (overrides rasterizer.dpi)",
	)

	// version needs no config or home directory
	versionCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads .env and config and builds the run logger. It creates nothing on
// disk; commands that write into the home directory create it themselves.
func setup(cmd *cobra.Command) (*svcctx.Services, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" && homeDir != "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	cm, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cmd, cm); err != nil {
		return nil, err
	}

	cfg := cm.Get()
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("run_id", uuid.NewString())
	cm.SetLogger(logger)

	logger.Debug("loaded config", "file", cm.ConfigFile(), "home", h.Path())

	return &svcctx.Services{
		ConfigManager: cm,
		Home:          h,
		Logger:        logger,
	}, nil
}

// applyFlagOverrides pins explicitly set flags above file and environment values.
func applyFlagOverrides(cmd *cobra.Command, cm *config.Manager) error {
	flags := cmd.Flags()
	overrides := []struct {
		flag  string
		key   string
		value any
	}{
		{"log-level", "log_level", logLevel},
		{"engine", "recognizer.engine", engineName},
		{"dpi", "rasterizer.dpi", dpi},
	}
	for _, o := range overrides {
		if !flags.Changed(o.flag) {
			continue
		}
		if err := cm.Override(o.key, o.value); err != nil {
			return fmt.Errorf("--%s: %w", o.flag, err)
		}
	}
	return nil
}

// report prints a single result document in the --output format and maps
// failure to errReported.
func report(w io.Writer, o parse.Outcome) error {
	if err := api.Output(w, o.Document); err != nil {
		return err
	}
	if !o.OK() {
		return errReported
	}
	return nil
}
