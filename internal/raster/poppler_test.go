package raster

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/pdfocr/internal/testutil"
)

func TestPageCount(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid pdf", func(t *testing.T) {
		for _, pages := range []int{1, 3} {
			path := testutil.WritePDF(t, dir, "doc.pdf", pages)
			got, err := PageCount(path)
			if err != nil {
				t.Fatalf("PageCount() error = %v", err)
			}
			if got != pages {
				t.Errorf("PageCount() = %d, want %d", got, pages)
			}
		}
	})

	t.Run("malformed pdf", func(t *testing.T) {
		path := filepath.Join(dir, "broken.pdf")
		os.WriteFile(path, []byte("this is not a pdf"), 0o644)
		if _, err := PageCount(path); err == nil {
			t.Error("expected error for malformed PDF")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := PageCount(filepath.Join(dir, "missing.pdf")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestPoppler_RenderArgs(t *testing.T) {
	p := NewPoppler(PopplerConfig{DPI: 300})
	got := strings.Join(p.renderArgs("/in/doc.pdf", "/tmp/page-2", 2), " ")
	want := "-png -f 2 -l 2 -r 300 -singlefile /in/doc.pdf /tmp/page-2"
	if got != want {
		t.Errorf("renderArgs() = %q, want %q", got, want)
	}
}

func TestNewPoppler_Defaults(t *testing.T) {
	p := NewPoppler(PopplerConfig{})
	if p.binary != DefaultBinary || p.dpi != DefaultDPI {
		t.Errorf("unexpected defaults: binary=%s dpi=%d", p.binary, p.dpi)
	}
	if p.Name() != PopplerName {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestPoppler_Check(t *testing.T) {
	p := NewPoppler(PopplerConfig{Binary: "pdfocr-no-such-binary"})
	if err := p.Check(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	fake := testutil.FakeBinary(t, "pdftoppm", "exit 0\n")
	if err := NewPoppler(PopplerConfig{Binary: fake}).Check(); err != nil {
		t.Errorf("expected fake binary to pass, got %v", err)
	}
}

func TestPoppler_Rasterize(t *testing.T) {
	dir := t.TempDir()
	pngPath := testutil.WritePNG(t, dir, "page.png", 170, 220)

	t.Run("renders pages in order", func(t *testing.T) {
		argsLog := filepath.Join(t.TempDir(), "args.log")
		scratch := filepath.Join(t.TempDir(), "scratch")
		p := NewPoppler(PopplerConfig{
			Binary:     testutil.FakePdftoppm(t, pngPath, argsLog),
			DPI:        150,
			ScratchDir: scratch,
			Logger:     testutil.Logger(),
		})
		p.pageCount = func(string) (int, error) { return 3, nil }

		pages, err := p.Rasterize(context.Background(), "/in/doc.pdf")
		if err != nil {
			t.Fatalf("Rasterize() error = %v", err)
		}
		if len(pages) != 3 {
			t.Fatalf("expected 3 pages, got %d", len(pages))
		}
		for i, page := range pages {
			if page.Number != i+1 {
				t.Errorf("page %d has number %d", i, page.Number)
			}
			if page.Width != 170 || page.Height != 220 {
				t.Errorf("page %d size = %dx%d, want 170x220", i, page.Width, page.Height)
			}
			if len(page.Image) == 0 {
				t.Errorf("page %d has no image data", i)
			}
		}

		log, err := os.ReadFile(argsLog)
		if err != nil {
			t.Fatalf("failed to read args log: %v", err)
		}
		calls := strings.Split(strings.TrimSpace(string(log)), "\n")
		if len(calls) != 3 {
			t.Fatalf("expected 3 pdftoppm calls, got %d", len(calls))
		}
		for i, call := range calls {
			want := "-png -f " + string(rune('1'+i)) + " -l " + string(rune('1'+i)) + " -r 150 -singlefile /in/doc.pdf"
			if !strings.HasPrefix(call, want) {
				t.Errorf("call %d = %q, want prefix %q", i, call, want)
			}
		}

		entries, _ := os.ReadDir(scratch)
		if len(entries) != 0 {
			t.Errorf("expected scratch dir to be cleaned up, found %d entries", len(entries))
		}
	})

	t.Run("relative path is passed as absolute", func(t *testing.T) {
		argsLog := filepath.Join(t.TempDir(), "args.log")
		work := t.TempDir()
		t.Chdir(work)
		p := NewPoppler(PopplerConfig{
			Binary: testutil.FakePdftoppm(t, pngPath, argsLog),
			Logger: testutil.Logger(),
		})
		var counted string
		p.pageCount = func(path string) (int, error) {
			counted = path
			return 1, nil
		}

		if _, err := p.Rasterize(context.Background(), "-x.pdf"); err != nil {
			t.Fatalf("Rasterize() error = %v", err)
		}
		want := filepath.Join(work, "-x.pdf")
		if counted != want {
			t.Errorf("page count path = %q, want %q", counted, want)
		}
		log, err := os.ReadFile(argsLog)
		if err != nil {
			t.Fatalf("failed to read args log: %v", err)
		}
		if !strings.Contains(string(log), " -singlefile "+want+" ") {
			t.Errorf("pdftoppm args = %q, want absolute path %q", log, want)
		}
	})

	t.Run("page count failure", func(t *testing.T) {
		p := NewPoppler(PopplerConfig{Binary: testutil.FakePdftoppm(t, pngPath, ""), Logger: testutil.Logger()})
		p.pageCount = func(string) (int, error) { return 0, errors.New("failed to get page count: corrupt xref") }
		if _, err := p.Rasterize(context.Background(), "/in/doc.pdf"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("tool failure", func(t *testing.T) {
		failing := testutil.FakeBinary(t, "pdftoppm", "echo 'Syntax Error: bad page' >&2\nexit 99\n")
		p := NewPoppler(PopplerConfig{Binary: failing, Logger: testutil.Logger()})
		p.pageCount = func(string) (int, error) { return 1, nil }

		_, err := p.Rasterize(context.Background(), "/in/doc.pdf")
		if err == nil || !strings.Contains(err.Error(), "bad page") {
			t.Errorf("expected tool output in error, got %v", err)
		}
	})

	t.Run("no output image", func(t *testing.T) {
		silent := testutil.FakeBinary(t, "pdftoppm", "exit 0\n")
		p := NewPoppler(PopplerConfig{Binary: silent, Logger: testutil.Logger()})
		p.pageCount = func(string) (int, error) { return 1, nil }

		if _, err := p.Rasterize(context.Background(), "/in/doc.pdf"); err == nil {
			t.Error("expected error when pdftoppm writes nothing")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := NewPoppler(PopplerConfig{Binary: testutil.FakePdftoppm(t, pngPath, ""), Logger: testutil.Logger()})
		p.pageCount = func(string) (int, error) { return 2, nil }

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Rasterize(ctx, "/in/doc.pdf"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestPoppler_RasterizeLive(t *testing.T) {
	if _, err := exec.LookPath(DefaultBinary); err != nil {
		t.Skip("pdftoppm not installed")
	}

	path := testutil.WritePDF(t, t.TempDir(), "blank.pdf", 2)
	p := NewPoppler(PopplerConfig{DPI: 72, Logger: testutil.Logger()})

	pages, err := p.Rasterize(context.Background(), path)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	// 200x100pt MediaBox at 72 DPI
	if pages[0].Width != 200 || pages[0].Height != 100 {
		t.Errorf("page size = %dx%d, want 200x100", pages[0].Width, pages[0].Height)
	}
}
