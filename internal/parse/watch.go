package parse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jackzampolin/pdfocr/internal/api"
	"github.com/jackzampolin/pdfocr/internal/home"
	"github.com/jackzampolin/pdfocr/internal/raster"
)

var errNotSettled = errors.New("file is still being written")

// WatcherConfig configures an inbox watcher.
type WatcherConfig struct {
	Dir       string
	OutputDir string
	Format    api.OutputFormat

	// SettleAttempts and SettleDelay bound how long a new file may keep
	// changing before it is parsed. At least two observations are needed.
	SettleAttempts uint
	SettleDelay    time.Duration

	Logger *slog.Logger
}

// Watcher parses PDFs as they land in a directory and writes one result
// document per file into OutputDir.
type Watcher struct {
	cfg    WatcherConfig
	parser *Parser
	logger *slog.Logger

	reload    chan *Parser
	processed map[string]time.Time

	// validate checks that a settled file is a readable PDF.
	validate func(path string) error
	// results, when set, receives every written outcome.
	results chan<- WatchResult
}

// WatchResult reports one processed file.
type WatchResult struct {
	Path       string
	ResultPath string
	Outcome    Outcome
}

// NewWatcher creates a watcher that uses parser until SetParser replaces it.
func NewWatcher(cfg WatcherConfig, parser *Parser) *Watcher {
	if cfg.SettleAttempts < 2 {
		cfg.SettleAttempts = 2
	}
	if cfg.Format == "" {
		cfg.Format = api.OutputFormatJSON
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:       cfg,
		parser:    parser,
		logger:    logger.With("dir", cfg.Dir),
		reload:    make(chan *Parser, 1),
		processed: make(map[string]time.Time),
		validate: func(path string) error {
			_, err := raster.PageCount(path)
			return err
		},
	}
}

// SetParser hands a rebuilt parser to the running watcher; it takes effect
// before the next file. Safe to call from any goroutine.
func (w *Watcher) SetParser(p *Parser) {
	for {
		select {
		case w.reload <- p:
			return
		default:
			// drop a pending parser that was never picked up
			select {
			case <-w.reload:
			default:
			}
		}
	}
}

// Notify sends every processed file to ch. It must be called before Run.
func (w *Watcher) Notify(ch chan<- WatchResult) {
	w.results = ch
}

// Run processes PDFs already in the directory, then watches for new ones
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}
	w.logger.Info("watching for PDFs", "output_dir", w.cfg.OutputDir)

	if err := w.scanExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case p := <-w.reload:
			w.parser = p
			w.logger.Info("parser reloaded")

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsPDF(ev.Name) || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			w.applyReload()
			w.handle(ctx, ev.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// applyReload picks up a parser sent while a file was being handled.
func (w *Watcher) applyReload() {
	select {
	case p := <-w.reload:
		w.parser = p
		w.logger.Info("parser reloaded")
	default:
	}
}

// scanExisting handles PDFs that have no up-to-date result yet.
func (w *Watcher) scanExisting(ctx context.Context) error {
	paths, err := FindPDFs(w.cfg.Dir, false)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil
		}
		if w.upToDate(path) {
			continue
		}
		w.handle(ctx, path)
	}
	return nil
}

func (w *Watcher) upToDate(path string) bool {
	src, err := os.Stat(path)
	if err != nil {
		return false
	}
	dst, err := os.Stat(home.ResultPath(w.cfg.OutputDir, path))
	if err != nil {
		return false
	}
	return !dst.ModTime().Before(src.ModTime())
}

// handle waits for path to settle, parses it and writes the result.
// Each file is processed once per modification time.
func (w *Watcher) handle(ctx context.Context, path string) {
	info, err := WaitForStable(ctx, path, w.validate, w.cfg.SettleAttempts, w.cfg.SettleDelay)
	if err != nil {
		if ctx.Err() == nil && !IsNotFound(err) {
			w.logger.Warn("skipping file that never settled", "path", path, "error", err)
		}
		return
	}
	if last, ok := w.processed[path]; ok && last.Equal(info.ModTime()) {
		return
	}
	w.processed[path] = info.ModTime()

	outcome := w.parser.Parse(ctx, path)
	resultPath := home.ResultPath(w.cfg.OutputDir, path)
	if err := api.WriteFile(resultPath, w.cfg.Format, outcome.Document); err != nil {
		w.logger.Error("failed to write result", "path", resultPath, "error", err)
		return
	}
	w.logger.Info("wrote result", "path", path, "result", resultPath, "success", outcome.OK())

	if w.results != nil {
		select {
		case w.results <- WatchResult{Path: path, ResultPath: resultPath, Outcome: outcome}:
		case <-ctx.Done():
		}
	}
}

// WaitForStable polls path until two consecutive observations report the same
// non-zero size and validate accepts it. A vanished file stops immediately.
func WaitForStable(ctx context.Context, path string, validate func(string) error, attempts uint, delay time.Duration) (os.FileInfo, error) {
	lastSize := int64(-1)
	return retry.DoWithData(func() (os.FileInfo, error) {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, retry.Unrecoverable(NewFileNotFoundError(path, err))
			}
			return nil, err
		}

		size := info.Size()
		prev := lastSize
		lastSize = size
		if size == 0 || size != prev {
			return nil, errNotSettled
		}
		if validate != nil {
			if err := validate(path); err != nil {
				return nil, fmt.Errorf("not a readable PDF yet: %w", err)
			}
		}
		return info, nil
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// DefaultOutputDir returns dir when set, else the home results directory.
func DefaultOutputDir(dir string, h *home.Dir) string {
	if dir != "" {
		return dir
	}
	return h.ResultsPath()
}

// ResolveDir makes dir absolute so events and results use stable paths.
func ResolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", NewInvalidDirectoryError(dir, err)
	}
	return abs, nil
}
