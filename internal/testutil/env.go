package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// TestingT is the subset of testing.T the fixtures need.
type TestingT interface {
	Name() string
	Helper()
	Fatalf(format string, args ...any)
	Skip(args ...any)
	TempDir() string
}

var _ TestingT = (*testing.T)(nil)

// Logger returns a logger that discards output unless PDFOCR_TEST_LOG is set.
func Logger() *slog.Logger {
	if os.Getenv("PDFOCR_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeBinary writes an executable shell script named name into a temp dir and
// returns its path. Tests that need one are skipped on Windows.
func FakeBinary(t TestingT, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	body := "#!/bin/sh\n" + strings.TrimLeft(script, "\n")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("failed to write fake binary: %v", err)
	}
	return path
}

// FakePdftoppm returns a pdftoppm stand-in that copies pngPath to the
// <prefix>.png output that -singlefile produces. Arguments are appended,
// one invocation per line, to argsLog when it is non-empty.
func FakePdftoppm(t TestingT, pngPath, argsLog string) string {
	t.Helper()
	script := fmt.Sprintf(`
for a in "$@"; do last="$a"; done
if [ -n %[2]q ]; then echo "$@" >> %[2]q; fi
cp %[1]q "$last.png"
`, pngPath, argsLog)
	return FakeBinary(t, "pdftoppm", script)
}

// WaitFor polls cond until it returns true or timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("condition not met after %v", timeout)
}
