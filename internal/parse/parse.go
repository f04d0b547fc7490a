// Package parse turns a PDF into a single DocumentResult by rasterizing its
// pages and running a recognition engine over each one.
package parse

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/pdfocr/internal/raster"
	"github.com/jackzampolin/pdfocr/internal/recognize"
)

const (
	lineSeparator = "\n"
	pageSeparator = "\n\n"
)

// Parser runs the rasterize -> recognize -> assemble pipeline.
// Pages are processed one at a time, in order.
type Parser struct {
	rasterizer raster.Rasterizer
	engine     recognize.Engine
	logger     *slog.Logger
}

// New creates a parser. The engine is typically a *recognize.Lazy shared for the whole run.
func New(rasterizer raster.Rasterizer, engine recognize.Engine, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		rasterizer: rasterizer,
		engine:     engine,
		logger:     logger,
	}
}

// ValidatePath checks that path names an existing regular file and returns it unchanged.
func ValidatePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", NewFileNotFoundError(path, err)
	}
	if !info.Mode().IsRegular() {
		return "", NewFileNotFoundError(path, fmt.Errorf("%s is not a regular file", path))
	}
	return path, nil
}

// Parse processes one PDF. It never returns a partial document: either every
// page is recognized or the outcome is a failure.
func (p *Parser) Parse(ctx context.Context, path string) Outcome {
	doc, err := p.parse(ctx, path)
	if err != nil {
		perr := AsError(err)
		p.logger.Error("failed to parse PDF", "path", path, "kind", perr.Kind, "error", err)
		return Failed(path, perr)
	}
	return Succeeded(doc)
}

func (p *Parser) parse(ctx context.Context, path string) (DocumentResult, error) {
	if _, err := ValidatePath(path); err != nil {
		return DocumentResult{}, err
	}

	p.logger.Info("converting PDF to images", "path", path)
	pages, err := p.rasterizer.Rasterize(ctx, path)
	if err != nil {
		return DocumentResult{}, NewProcessingError(fmt.Errorf("failed to convert PDF to images: %w", err))
	}

	results := make([]PageResult, 0, len(pages))
	for i, page := range pages {
		num := i + 1
		p.logger.Info("processing page", "page", num, "of", len(pages))

		detections, err := p.engine.Recognize(ctx, page.Image)
		if err != nil {
			return DocumentResult{}, NewProcessingError(fmt.Errorf("failed to recognize page %d: %w", num, err))
		}
		results = append(results, BuildPage(num, detections))
	}

	info, err := os.Stat(path)
	if err != nil {
		return DocumentResult{}, NewProcessingError(fmt.Errorf("failed to stat %s: %w", path, err))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return DocumentResult{}, NewProcessingError(fmt.Errorf("failed to resolve %s: %w", path, err))
	}

	return Assemble(absPath, info.Size(), p.engine.Name(), results), nil
}

// BuildPage converts one page's detections. A nil slice is a page with no text.
func BuildPage(num int, detections []recognize.Detection) PageResult {
	boxes := make([]Detection, len(detections))
	texts := make([]string, len(detections))
	for i, d := range detections {
		var box [4][2]int
		for j, pt := range d.Box {
			box[j] = [2]int{pt.X, pt.Y}
		}
		boxes[i] = Detection{Text: d.Text, Confidence: d.Confidence, Box: box}
		texts[i] = d.Text
	}
	return PageResult{
		Page:       num,
		Text:       strings.Join(texts, lineSeparator),
		Boxes:      boxes,
		TextBlocks: len(boxes),
	}
}

// Assemble folds page results into a successful document.
func Assemble(absPath string, fileSize int64, parser string, pages []PageResult) DocumentResult {
	if pages == nil {
		pages = []PageResult{}
	}
	texts := make([]string, len(pages))
	total := 0
	for i, pg := range pages {
		texts[i] = pg.Text
		total += pg.TextBlocks
	}
	content := strings.Join(texts, pageSeparator)

	return DocumentResult{
		FileName: filepath.Base(absPath),
		FilePath: absPath,
		Content:  &content,
		Metadata: &Metadata{
			FileSize:        fileSize,
			Pages:           len(pages),
			Parser:          parser,
			TotalTextBlocks: total,
			PageDetails:     pages,
		},
		Success: true,
	}
}

// Failed renders err as a failure document for input. The file fields are
// filled from the raw input; an empty input is reported as "unknown".
func Failed(input string, err *Error) Outcome {
	name := "unknown"
	if input != "" {
		name = filepath.Base(input)
	}
	msg := err.Message
	return Outcome{
		Document: DocumentResult{
			FileName: name,
			FilePath: input,
			Success:  false,
			Error:    &msg,
		},
		Err: err,
	}
}

// FailedWithoutFile renders a failure that happened before any file was chosen,
// such as a missing argument or dependency.
func FailedWithoutFile(err *Error) Outcome {
	msg := err.Message
	return Outcome{
		Document: DocumentResult{Success: false, Error: &msg},
		Err:      err,
	}
}

// IsNotFound reports whether err is a file-not-found failure.
func IsNotFound(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == KindFileNotFound
	}
	return errors.Is(err, fs.ErrNotExist)
}
