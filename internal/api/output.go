package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// DefaultOutput is the default output format. Result documents are a JSON
// contract, so JSON wins unless the caller asks otherwise.
var DefaultOutput OutputFormat = OutputFormatJSON

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat OutputFormat = OutputFormatJSON

// SetOutputFormat sets the global output format.
func SetOutputFormat(format string) {
	globalOutputFormat = ParseOutputFormat(format)
}

// ParseOutputFormat maps a flag value to an OutputFormat, falling back to DefaultOutput.
func ParseOutputFormat(format string) OutputFormat {
	switch format {
	case "json":
		return OutputFormatJSON
	case "yaml":
		return OutputFormatYAML
	default:
		return DefaultOutput
	}
}

// Output writes data to w in the format chosen with SetOutputFormat.
func Output(w io.Writer, data any) error {
	return OutputTo(w, globalOutputFormat, data)
}

// OutputTo writes data to the given writer in the specified format.
// JSON keeps non-ASCII text and characters like <, > and & as-is.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// WriteFile writes data to path in the given format, replacing any existing file.
// The document is written to a temp file first so readers never see a partial result.
func WriteFile(path string, format OutputFormat, data any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdfocr-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := OutputTo(tmp, format, data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move result into place: %w", err)
	}
	return nil
}
