package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

const (
	PopplerName    = "pdftoppm"
	DefaultBinary  = "pdftoppm"
	DefaultDPI     = 200
	pagePrefixName = "page"
)

// PopplerConfig configures the pdftoppm rasterizer.
type PopplerConfig struct {
	Binary     string
	DPI        int
	ScratchDir string // parent for per-document temp dirs, "" = os.TempDir
	Logger     *slog.Logger
}

// Poppler renders pages with pdftoppm (poppler-utils), one process per page.
type Poppler struct {
	binary     string
	dpi        int
	scratchDir string
	logger     *slog.Logger

	// pageCount is swapped in tests that have no real PDF at hand.
	pageCount func(path string) (int, error)
}

// NewPoppler creates a rasterizer. Zero values fall back to defaults.
func NewPoppler(cfg PopplerConfig) *Poppler {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.DPI == 0 {
		cfg.DPI = DefaultDPI
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poppler{
		binary:     cfg.Binary,
		dpi:        cfg.DPI,
		scratchDir: cfg.ScratchDir,
		logger:     logger,
		pageCount:  PageCount,
	}
}

// Name returns the tool name.
func (p *Poppler) Name() string {
	return PopplerName
}

// Check looks for the pdftoppm binary.
func (p *Poppler) Check() error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return fmt.Errorf("%w: %s not found in PATH (install poppler-utils)", ErrUnavailable, p.binary)
	}
	return nil
}

// Rasterize renders every page of the PDF at the configured DPI.
func (p *Poppler) Rasterize(ctx context.Context, path string) ([]Page, error) {
	// an absolute path keeps names like "-x.pdf" from reading as pdftoppm options
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	path = abs
	count, err := p.pageCount(path)
	if err != nil {
		return nil, err
	}

	if p.scratchDir != "" {
		if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create scratch dir: %w", err)
		}
	}
	tmpDir, err := os.MkdirTemp(p.scratchDir, "pdfocr-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pages := make([]Page, 0, count)
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.renderPage(ctx, path, tmpDir, n)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		p.logger.Debug("rendered page", "page", n, "of", count, "width", page.Width, "height", page.Height)
		pages = append(pages, page)
	}
	return pages, nil
}

// renderPage renders a single page and reads it back.
func (p *Poppler) renderPage(ctx context.Context, pdfPath, tmpDir string, pageNum int) (Page, error) {
	outputPrefix := filepath.Join(tmpDir, fmt.Sprintf("%s-%d", pagePrefixName, pageNum))

	cmd := exec.CommandContext(ctx, p.binary, p.renderArgs(pdfPath, outputPrefix, pageNum)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, ctxErr
		}
		return Page{}, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, bytes.TrimSpace(output))
	}

	// pdftoppm with -singlefile creates: <prefix>.png
	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return Page{}, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	os.Remove(srcPath)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("failed to decode rendered image: %w", err)
	}

	return Page{
		Number: pageNum,
		Image:  data,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// renderArgs builds the pdftoppm command line:
// -png output, -f/-l a single page, -r resolution, -singlefile no page suffix.
func (p *Poppler) renderArgs(pdfPath, outputPrefix string, pageNum int) []string {
	pageStr := strconv.Itoa(pageNum)
	return []string{
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(p.dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	}
}

var _ Rasterizer = (*Poppler)(nil)
