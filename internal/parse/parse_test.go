package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jackzampolin/pdfocr/internal/api"
	"github.com/jackzampolin/pdfocr/internal/raster"
	"github.com/jackzampolin/pdfocr/internal/recognize"
	"github.com/jackzampolin/pdfocr/internal/testutil"
)

// fakeRasterizer returns pages whose image is a single byte holding the page index.
type fakeRasterizer struct {
	pages int
	err   error
	calls atomic.Int32
}

func (f *fakeRasterizer) Name() string { return "fake" }
func (f *fakeRasterizer) Check() error { return nil }

func (f *fakeRasterizer) Rasterize(ctx context.Context, path string) ([]raster.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	pages := make([]raster.Page, f.pages)
	for i := range pages {
		pages[i] = raster.Page{Number: i + 1, Image: []byte{byte(i)}, Width: 100, Height: 100}
	}
	return pages, nil
}

// pageEngine returns detections by page index, read from the fake image byte.
type pageEngine struct {
	name   string
	pages  map[int][]recognize.Detection
	failOn int // 1-based page that errors, 0 = never
}

func (e *pageEngine) Name() string {
	if e.name == "" {
		return "fake-ocr"
	}
	return e.name
}

func (e *pageEngine) Recognize(ctx context.Context, img []byte) ([]recognize.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := int(img[0])
	if e.failOn == idx+1 {
		return nil, errors.New("inference crashed")
	}
	return e.pages[idx], nil
}

func line(text string, conf float64, x, y int) recognize.Detection {
	return recognize.Detection{
		Text:       text,
		Confidence: conf,
		Box: recognize.Quad{
			{X: x, Y: y}, {X: x + 100, Y: y}, {X: x + 100, Y: y + 20}, {X: x, Y: y + 20},
		},
	}
}

func samplePDF(t *testing.T) string {
	t.Helper()
	return testutil.WritePDF(t, t.TempDir(), "sample.pdf", 2)
}

func TestParser_Parse(t *testing.T) {
	t.Run("sample document", func(t *testing.T) {
		path := samplePDF(t)
		engine := &pageEngine{pages: map[int][]recognize.Detection{
			0: {line("Hello World", 0.98, 10, 20)},
		}}
		p := New(&fakeRasterizer{pages: 2}, engine, testutil.Logger())

		out := p.Parse(context.Background(), path)
		if !out.OK() {
			t.Fatalf("Parse() failed: %v", out.Err)
		}
		doc := out.Document
		if !doc.Success || doc.Error != nil {
			t.Errorf("expected success with nil error, got success=%v error=%v", doc.Success, doc.Error)
		}
		if doc.Metadata.Pages != 2 || len(doc.Metadata.PageDetails) != 2 {
			t.Errorf("expected 2 pages, got %d / %d", doc.Metadata.Pages, len(doc.Metadata.PageDetails))
		}
		first := doc.Metadata.PageDetails[0]
		if first.Text != "Hello World" || first.TextBlocks != 1 || first.Page != 1 {
			t.Errorf("unexpected first page: %+v", first)
		}
		second := doc.Metadata.PageDetails[1]
		if second.Page != 2 || second.Text != "" || second.TextBlocks != 0 || second.Boxes == nil {
			t.Errorf("unexpected empty page: %+v", second)
		}
		if *doc.Content != "Hello World\n\n" {
			t.Errorf("content = %q", *doc.Content)
		}
		if doc.Metadata.Parser != "fake-ocr" {
			t.Errorf("parser = %q", doc.Metadata.Parser)
		}

		info, _ := os.Stat(path)
		if doc.Metadata.FileSize != info.Size() {
			t.Errorf("file_size = %d, want %d", doc.Metadata.FileSize, info.Size())
		}
		if doc.FileName != "sample.pdf" || !filepath.IsAbs(doc.FilePath) {
			t.Errorf("unexpected file fields: %q %q", doc.FileName, doc.FilePath)
		}
	})

	t.Run("aggregates pages", func(t *testing.T) {
		engine := &pageEngine{pages: map[int][]recognize.Detection{
			0: {line("一", 0.9, 0, 0), line("two", 0.8, 0, 30)},
			1: nil,
			2: {line("three", 0.7, 0, 0), line("", 0.1, 0, 30), line("four", 1, 0, 60)},
		}}
		p := New(&fakeRasterizer{pages: 3}, engine, testutil.Logger())
		out := p.Parse(context.Background(), samplePDF(t))
		if !out.OK() {
			t.Fatalf("Parse() failed: %v", out.Err)
		}
		md := out.Document.Metadata

		sum := 0
		texts := make([]string, len(md.PageDetails))
		for i, pg := range md.PageDetails {
			sum += pg.TextBlocks
			texts[i] = pg.Text
			if pg.TextBlocks != len(pg.Boxes) {
				t.Errorf("page %d: text_blocks %d != len(boxes) %d", pg.Page, pg.TextBlocks, len(pg.Boxes))
			}
			for _, b := range pg.Boxes {
				if b.Confidence < 0 || b.Confidence > 1 {
					t.Errorf("confidence out of range: %v", b.Confidence)
				}
			}
		}
		if md.TotalTextBlocks != sum || sum != 5 {
			t.Errorf("total_text_blocks = %d, sum = %d, want 5", md.TotalTextBlocks, sum)
		}
		if want := strings.Join(texts, "\n\n"); *out.Document.Content != want {
			t.Errorf("content = %q, want %q", *out.Document.Content, want)
		}
		if md.PageDetails[0].Text != "一\ntwo" {
			t.Errorf("page 1 text = %q", md.PageDetails[0].Text)
		}
		if md.PageDetails[2].Text != "three\n\nfour" {
			t.Errorf("page 3 text = %q", md.PageDetails[2].Text)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		r := &fakeRasterizer{pages: 1}
		p := New(r, &pageEngine{}, testutil.Logger())

		path := filepath.Join(t.TempDir(), "missing.pdf")
		out := p.Parse(context.Background(), path)
		if out.OK() {
			t.Fatal("expected failure")
		}
		doc := out.Document
		if doc.Success || doc.Content != nil || doc.Metadata != nil {
			t.Errorf("expected null content and metadata, got %+v", doc)
		}
		if doc.Error == nil || !strings.Contains(*doc.Error, "not found") {
			t.Errorf("error = %v, want it to mention not found", doc.Error)
		}
		if out.Err.Kind != KindFileNotFound {
			t.Errorf("kind = %s", out.Err.Kind)
		}
		if doc.FileName != "missing.pdf" || doc.FilePath != path {
			t.Errorf("expected best-effort file fields, got %q %q", doc.FileName, doc.FilePath)
		}
		if r.calls.Load() != 0 {
			t.Error("rasterizer should not run for a missing file")
		}
	})

	t.Run("directory is not a file", func(t *testing.T) {
		p := New(&fakeRasterizer{pages: 1}, &pageEngine{}, testutil.Logger())
		out := p.Parse(context.Background(), t.TempDir())
		if out.OK() || out.Err.Kind != KindFileNotFound {
			t.Errorf("expected file_not_found, got %+v", out.Err)
		}
	})

	t.Run("rasterization failure", func(t *testing.T) {
		r := &fakeRasterizer{err: errors.New("failed to get page count: corrupt xref")}
		p := New(r, &pageEngine{}, testutil.Logger())
		out := p.Parse(context.Background(), samplePDF(t))
		if out.OK() || out.Err.Kind != KindProcessingFailure {
			t.Fatalf("expected processing failure, got %+v", out.Err)
		}
		if !strings.Contains(*out.Document.Error, "corrupt xref") {
			t.Errorf("error = %q", *out.Document.Error)
		}
	})

	t.Run("recognition failure is not an empty page", func(t *testing.T) {
		engine := &pageEngine{
			pages:  map[int][]recognize.Detection{0: {line("ok", 0.9, 0, 0)}},
			failOn: 2,
		}
		p := New(&fakeRasterizer{pages: 3}, engine, testutil.Logger())
		out := p.Parse(context.Background(), samplePDF(t))
		if out.OK() {
			t.Fatal("expected failure")
		}
		if out.Err.Kind != KindProcessingFailure {
			t.Errorf("kind = %s", out.Err.Kind)
		}
		if out.Document.Metadata != nil || out.Document.Content != nil {
			t.Error("no partial results on failure")
		}
		if !strings.Contains(*out.Document.Error, "page 2") || !strings.Contains(*out.Document.Error, "inference crashed") {
			t.Errorf("error = %q", *out.Document.Error)
		}
	})

	t.Run("engine initialization failure", func(t *testing.T) {
		lazy := recognize.NewLazy("tesseract", func() (recognize.Engine, error) {
			return nil, recognize.ErrOCRNotEnabled
		})
		p := New(&fakeRasterizer{pages: 1}, lazy, testutil.Logger())
		out := p.Parse(context.Background(), samplePDF(t))
		if out.OK() || out.Err.Kind != KindProcessingFailure {
			t.Fatalf("expected processing failure, got %+v", out.Err)
		}
		if !errors.Is(out.Err, recognize.ErrUnavailable) {
			t.Error("cause should be preserved")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := New(&fakeRasterizer{pages: 1}, &pageEngine{}, testutil.Logger())
		out := p.Parse(ctx, samplePDF(t))
		if out.OK() || !errors.Is(out.Err, context.Canceled) {
			t.Errorf("expected cancellation failure, got %+v", out.Err)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		path := samplePDF(t)
		engine := &pageEngine{pages: map[int][]recognize.Detection{
			0: {line("Hello World", 0.98, 10, 20)},
			1: {line("Second", 0.5, 1, 2)},
		}}
		p := New(&fakeRasterizer{pages: 2}, engine, testutil.Logger())

		a := p.Parse(context.Background(), path)
		b := p.Parse(context.Background(), path)
		if !reflect.DeepEqual(a.Document, b.Document) {
			t.Error("two runs over the same input should produce identical documents")
		}
	})

	t.Run("lazy engine is built once across documents", func(t *testing.T) {
		var builds atomic.Int32
		lazy := recognize.NewLazy("mock", func() (recognize.Engine, error) {
			builds.Add(1)
			return recognize.NewMockEngine(), nil
		})
		p := New(&fakeRasterizer{pages: 3}, lazy, testutil.Logger())
		for i := 0; i < 2; i++ {
			if out := p.Parse(context.Background(), samplePDF(t)); !out.OK() {
				t.Fatalf("Parse() failed: %v", out.Err)
			}
		}
		if builds.Load() != 1 {
			t.Errorf("engine built %d times, want 1", builds.Load())
		}
	})
}

func TestDocumentResult_JSON(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		out := Failed("missing.pdf", NewFileNotFoundError("missing.pdf", nil))
		data, err := json.Marshal(out.Document)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var m map[string]any
		json.Unmarshal(data, &m)

		for _, key := range []string{"content", "metadata"} {
			v, ok := m[key]
			if !ok || v != nil {
				t.Errorf("%s should be present and null, got %v (present=%v)", key, v, ok)
			}
		}
		if m["success"] != false || m["error"] != "PDF file not found: missing.pdf" {
			t.Errorf("unexpected document: %s", data)
		}
	})

	t.Run("success", func(t *testing.T) {
		doc := Assemble("/abs/doc.pdf", 10, "fake", []PageResult{BuildPage(1, []recognize.Detection{line("x", 0.5, 1, 2)})})
		data, _ := json.Marshal(doc)
		s := string(data)
		for _, want := range []string{`"error":null`, `"success":true`, `"box":[[1,2],[101,2],[101,22],[1,22]]`, `"file_name":"doc.pdf"`} {
			if !strings.Contains(s, want) {
				t.Errorf("expected %s in %s", want, s)
			}
		}
	})

	t.Run("failure without file", func(t *testing.T) {
		var buf bytes.Buffer
		if err := api.OutputTo(&buf, api.OutputFormatJSON, FailedWithoutFile(NewMissingArgumentError()).Document); err != nil {
			t.Fatalf("OutputTo() error = %v", err)
		}
		if !strings.Contains(buf.String(), UsageMessage) {
			t.Errorf("usage message should be printed unescaped: %s", buf.String())
		}

		var m map[string]any
		if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		for _, key := range []string{"file_name", "file_path"} {
			if _, ok := m[key]; ok {
				t.Errorf("%s should be omitted: %s", key, buf.String())
			}
		}
		if m["error"] != UsageMessage {
			t.Errorf("error = %v, want %q", m["error"], UsageMessage)
		}
	})
}

func TestFailed_EmptyInput(t *testing.T) {
	out := Failed("", NewProcessingError(errors.New("boom")))
	if out.Document.FileName != "unknown" {
		t.Errorf("file_name = %q, want unknown", out.Document.FileName)
	}
}

func TestAssemble_NoPages(t *testing.T) {
	doc := Assemble("/abs/empty.pdf", 0, "fake", nil)
	if *doc.Content != "" || doc.Metadata.Pages != 0 || doc.Metadata.PageDetails == nil {
		t.Errorf("unexpected empty document: %+v", doc.Metadata)
	}
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.pdf")
	os.WriteFile(file, []byte("x"), 0o644)

	got, err := ValidatePath(file)
	if err != nil || got != file {
		t.Errorf("ValidatePath(file) = %q, %v", got, err)
	}

	for _, path := range []string{filepath.Join(dir, "nope.pdf"), dir, ""} {
		_, err := ValidatePath(path)
		if !IsNotFound(err) {
			t.Errorf("ValidatePath(%q) error = %v, want not found", path, err)
		}
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("pdftoppm not found")
	err := NewMissingDependencyError(cause)
	if err.Message != "Missing dependencies: pdftoppm not found" {
		t.Errorf("message = %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should unwrap")
	}

	wrapped := AsError(errors.Join(errors.New("ctx"), NewFileNotFoundError("x.pdf", nil)))
	if wrapped.Kind != KindFileNotFound {
		t.Errorf("AsError should find the classified error, got %s", wrapped.Kind)
	}
	if AsError(errors.New("plain")).Kind != KindProcessingFailure {
		t.Error("unclassified errors are processing failures")
	}
}
