package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/pdfocr/internal/parse"
	"github.com/jackzampolin/pdfocr/internal/testutil"
)

// writeConfig writes a config that uses binary as pdftoppm and the paddle engine at endpoint.
func writeConfig(t *testing.T, binary, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`log_level: error
rasterizer:
  binary: %q
recognizer:
  engine: paddle
  paddle:
    endpoint: %q
`, binary, endpoint)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs rootCmd with args and returns what it printed on stdout.
// Flag values and Changed bits are reset first since the command tree is global.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	rootCmd.Flags().VisitAll(reset)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeDocument(t *testing.T, out string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("stdout is not one JSON document: %v\n%s", err, out)
	}
	return doc
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	png := testutil.WritePNG(t, dir, "page.png", 40, 20)
	binary := testutil.FakePdftoppm(t, png, "")
	cfg := writeConfig(t, binary, paddleServer(t).URL)
	pdf := testutil.WritePDF(t, dir, "sample.pdf", 2)

	t.Run("success", func(t *testing.T) {
		home := filepath.Join(t.TempDir(), "home")
		out, err := execute(t, "--config", cfg, "--home", home, pdf)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		doc := decodeDocument(t, out)
		if doc["success"] != true || doc["error"] != nil || doc["file_name"] != "sample.pdf" {
			t.Errorf("unexpected document: %s", out)
		}
		md, _ := doc["metadata"].(map[string]any)
		if md["pages"] != float64(2) || md["parser"] != "paddleocr" {
			t.Errorf("unexpected metadata: %v", md)
		}
		if doc["content"] != "Hello World\n\nHello World" {
			t.Errorf("content = %v", doc["content"])
		}
	})

	t.Run("missing argument", func(t *testing.T) {
		home := filepath.Join(t.TempDir(), "home")
		out, err := execute(t, "--config", cfg, "--home", home)
		if !errors.Is(err, errReported) {
			t.Errorf("expected errReported, got %v", err)
		}
		doc := decodeDocument(t, out)
		if doc["success"] != false || doc["error"] != parse.UsageMessage {
			t.Errorf("unexpected document: %s", out)
		}
		if doc["content"] != nil || doc["metadata"] != nil {
			t.Errorf("content and metadata should be null: %s", out)
		}
		if _, statErr := os.Stat(home); !os.IsNotExist(statErr) {
			t.Error("home directory should not be created for a missing argument")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "missing.pdf")
		out, err := execute(t, "--config", cfg, "--home", t.TempDir(), missing)
		if !errors.Is(err, errReported) {
			t.Errorf("expected errReported, got %v", err)
		}
		doc := decodeDocument(t, out)
		if doc["error"] != "PDF file not found: "+missing || doc["file_name"] != "missing.pdf" || doc["file_path"] != missing {
			t.Errorf("unexpected document: %s", out)
		}
	})

	t.Run("dependencies are checked before the argument", func(t *testing.T) {
		noBinary := writeConfig(t, filepath.Join(t.TempDir(), "pdftoppm"), "http://127.0.0.1:1/ocr")
		out, err := execute(t, "--config", noBinary, "--home", t.TempDir())
		if !errors.Is(err, errReported) {
			t.Errorf("expected errReported, got %v", err)
		}
		doc := decodeDocument(t, out)
		msg, _ := doc["error"].(string)
		if !strings.HasPrefix(msg, "Missing dependencies: ") {
			t.Errorf("error = %q, want a missing dependency", msg)
		}
	})

	t.Run("invalid config still prints a document", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "--home", t.TempDir(), "--dpi", "5", pdf)
		if !errors.Is(err, errReported) {
			t.Errorf("expected errReported, got %v", err)
		}
		doc := decodeDocument(t, out)
		msg, _ := doc["error"].(string)
		if doc["success"] != false || !strings.Contains(msg, "rasterizer.dpi") {
			t.Errorf("unexpected document: %s", out)
		}
	})

	t.Run("yaml output", func(t *testing.T) {
		out, err := execute(t, "--config", cfg, "--home", t.TempDir(), "-o", "yaml", pdf)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
			t.Fatalf("stdout is not YAML: %v\n%s", err, out)
		}
		if doc["success"] != true || doc["file_name"] != "sample.pdf" {
			t.Errorf("unexpected document: %s", out)
		}
	})
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	if err := report(&buf, parse.FailedWithoutFile(parse.NewMissingArgumentError())); !errors.Is(err, errReported) {
		t.Errorf("report() error = %v, want errReported", err)
	}
	if !strings.Contains(buf.String(), parse.UsageMessage) {
		t.Errorf("usage message should not be HTML-escaped: %s", buf.String())
	}

	buf.Reset()
	doc := parse.Assemble("/abs/a.pdf", 1, "fake", nil)
	if err := report(&buf, parse.Succeeded(doc)); err != nil {
		t.Errorf("report() error = %v", err)
	}
}
