package auditlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "usage.log")
	logger, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.clock = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestLogSuccessLine(t *testing.T) {
	t.Parallel()

	logger, path := newTestLogger(t)
	if err := logger.Log("forecast", storage.KindTool, true, ""); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	lines := readLines(t, path)
	want := "2026-03-01T12:00:00|tool:forecast|OK"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("log line = %q, want %q", lines, want)
	}
}

func TestLogFailureTruncatesError(t *testing.T) {
	t.Parallel()

	logger, path := newTestLogger(t)
	long := strings.Repeat("x", 150)
	if err := logger.Log("forecast", storage.KindPrompt, false, long); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	lines := readLines(t, path)
	parts := strings.Split(lines[0], "|")
	if len(parts) != 4 {
		t.Fatalf("line fields = %d, want 4: %q", len(parts), lines[0])
	}
	if parts[1] != "prompt:forecast" || parts[2] != "FAIL" {
		t.Errorf("line = %q, want prompt:forecast FAIL", lines[0])
	}
	if len(parts[3]) != 100 {
		t.Errorf("error fragment length = %d, want 100", len(parts[3]))
	}
}

func TestLogFailureTruncatesMultibyteErrorOnRuneBoundary(t *testing.T) {
	t.Parallel()

	logger, path := newTestLogger(t)
	long := strings.Repeat("é", 150)
	if err := logger.Log("forecast", storage.KindTool, false, long); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	lines := readLines(t, path)
	parts := strings.Split(lines[0], "|")
	if len(parts) != 4 {
		t.Fatalf("line fields = %d, want 4: %q", len(parts), lines[0])
	}
	if !utf8.ValidString(parts[3]) {
		t.Fatalf("error fragment is not valid UTF-8: %q", parts[3])
	}
	if count := utf8.RuneCountInString(parts[3]); count != 100 {
		t.Errorf("error fragment runes = %d, want 100", count)
	}
}

func TestLogAppends(t *testing.T) {
	t.Parallel()

	logger, path := newTestLogger(t)
	for i := 0; i < 3; i++ {
		if err := logger.Log("echo", storage.KindTool, true, ""); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}
	if got := len(readLines(t, path)); got != 3 {
		t.Fatalf("lines = %d, want 3", got)
	}
}

func TestDisabledLoggerIsNoOp(t *testing.T) {
	t.Parallel()

	var logger *Logger
	if logger.Enabled() {
		t.Error("nil logger Enabled() = true, want false")
	}
	if err := logger.Log("echo", storage.KindTool, true, ""); err != nil {
		t.Errorf("nil logger Log() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("nil logger Close() error = %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	logger, _ := newTestLogger(t)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if logger.Enabled() {
		t.Error("Enabled() after Close = true, want false")
	}
}
