package parse

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numberSuffix = regexp.MustCompile(`(?i)-(\d+)\.pdf$`)

// IsPDF reports whether path has a .pdf extension, in any case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// FindPDFs lists the PDF files under dir, descending into subdirectories when recursive.
func FindPDFs(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, NewInvalidDirectoryError(dir, err)
	}
	if !info.IsDir() {
		return nil, NewInvalidDirectoryError(dir, fmt.Errorf("%s is not a directory", dir))
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsPDF(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, NewProcessingError(fmt.Errorf("failed to walk %s: %w", dir, err))
	}
	return sortPDFsByNumber(paths), nil
}

// ParseDirectory parses every PDF under dir in order. An invalid directory
// yields a single failure outcome. Cancellation stops before the next file.
func (p *Parser) ParseDirectory(ctx context.Context, dir string, recursive bool) []Outcome {
	paths, err := FindPDFs(dir, recursive)
	if err != nil {
		perr := AsError(err)
		p.logger.Error("failed to list PDFs", "dir", dir, "error", err)
		return []Outcome{FailedWithoutFile(perr)}
	}

	p.logger.Info("parsing directory", "dir", dir, "pdfs", len(paths))
	outcomes := make([]Outcome, 0, len(paths))
	for i, path := range paths {
		if ctx.Err() != nil {
			p.logger.Warn("directory parse cancelled", "done", i, "total", len(paths))
			break
		}
		outcomes = append(outcomes, p.Parse(ctx, path))
	}
	return outcomes
}

// Documents extracts the result documents from outcomes.
func Documents(outcomes []Outcome) []DocumentResult {
	docs := make([]DocumentResult, len(outcomes))
	for i, o := range outcomes {
		docs[i] = o.Document
	}
	return docs
}

// AllOK reports whether every outcome succeeded.
func AllOK(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.OK() {
			return false
		}
	}
	return true
}

// sortPDFsByNumber orders PDFs by directory, then by numeric suffix
// (book-1.pdf, book-2.pdf, book-10.pdf). Files without a number come first,
// alphabetically.
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := filepath.Dir(sorted[i]), filepath.Dir(sorted[j])
		if di != dj {
			return di < dj
		}

		mi := numberSuffix.FindStringSubmatch(sorted[i])
		mj := numberSuffix.FindStringSubmatch(sorted[j])

		// If both have numbers, sort numerically
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			if ni != nj {
				return ni < nj
			}
			return sorted[i] < sorted[j]
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		return sorted[i] < sorted[j]
	})

	return sorted
}
