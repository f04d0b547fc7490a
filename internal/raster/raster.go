// Package raster renders PDF pages to images.
package raster

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrUnavailable marks a rasterizer whose external tool is missing.
var ErrUnavailable = errors.New("rasterizer unavailable")

// Page is one rendered page.
type Page struct {
	Number int // 1-based page number in the PDF
	Image  []byte
	Width  int
	Height int
}

// Rasterizer turns a PDF into page images, in page order.
type Rasterizer interface {
	Name() string

	// Check reports whether the rasterizer can run. Failures wrap ErrUnavailable.
	Check() error

	// Rasterize renders every page. A malformed or unreadable PDF is an error.
	Rasterize(ctx context.Context, path string) ([]Page, error)
}

// PageCount reads the number of pages in a PDF with pdfcpu.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}
