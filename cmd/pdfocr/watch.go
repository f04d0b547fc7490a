package main

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/config"
	"github.com/jackzampolin/pdfocr/internal/parse"
	"github.com/jackzampolin/pdfocr/internal/svcctx"
)

var watchOutputDir string

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Parse PDFs as they are added to a directory",
	Long: `Watch a directory and parse every PDF that lands in it. Each result is
written to <output-dir>/<name>.json. PDFs already present without an
up-to-date result are parsed on startup.

Edits to the config file take effect for the next PDF.

Examples:
  pdfocr watch ./inbox
  pdfocr watch --output-dir ./results ./inbox`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := svcctx.ServicesFrom(ctx)
		cfg := svc.Config()
		logger := svcctx.LoggerFrom(ctx)

		dir, err := parse.ResolveDir(args[0])
		if err != nil {
			return err
		}
		outDir := cfg.Watch.OutputDir
		if cmd.Flags().Changed("output-dir") {
			outDir = watchOutputDir
		}
		outDir = parse.DefaultOutputDir(outDir, svc.Home)

		p, err := newPipeline(svc, cfg)
		if err != nil {
			return parse.NewMissingDependencyError(err)
		}

		// Replaced pipelines may still be mid-document, so close them all on exit.
		var mu sync.Mutex
		pipelines := []*pipeline{p}
		defer func() {
			mu.Lock()
			defer mu.Unlock()
			for _, p := range pipelines {
				p.Close()
			}
		}()

		w := parse.NewWatcher(parse.WatcherConfig{
			Dir:            dir,
			OutputDir:      outDir,
			SettleAttempts: cfg.Watch.SettleAttempts,
			SettleDelay:    cfg.Watch.SettleDelay,
			Logger:         logger,
		}, p.parser)

		svc.ConfigManager.OnChange(func(next *config.Config) {
			np, err := newPipeline(svc, next)
			if err != nil {
				logger.Warn("keeping previous parser", "error", err)
				return
			}
			mu.Lock()
			pipelines = append(pipelines, np)
			mu.Unlock()
			w.SetParser(np.parser)
		})
		svc.ConfigManager.WatchConfig()

		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchOutputDir, "output-dir", "", "result directory (overrides watch.output_dir, default: <home>/results)")
}
