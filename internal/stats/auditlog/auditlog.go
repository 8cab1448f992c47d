// Package auditlog appends one plain-text line per tracked invocation to a
// local file. It is an optional side channel next to the SQLite store and is
// tolerant of being disabled or unconfigured.
package auditlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
)

const timeFormat = "2006-01-02T15:04:05"

// maxErrorLen bounds the error fragment so one bad call cannot bloat the log.
const maxErrorLen = 100

// Logger writes invocation lines to an append-only file.
type Logger struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	clock func() time.Time
}

// New opens (or creates) the audit log at path, creating the parent
// directory if needed.
func New(path string) (*Logger, error) {
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{file: file, path: path, clock: time.Now}, nil
}

// Enabled reports whether the logger has an open file. A nil logger is a
// valid disabled logger.
func (l *Logger) Enabled() bool {
	return l != nil && l.file != nil
}

// Log appends one line for an invocation. Lines look like
//
//	2026-03-01T12:00:00|tool:forecast|OK
//	2026-03-01T12:00:05|tool:forecast|FAIL|timeout contacting upstream
//
// Failure reasons are truncated to 100 characters. Logging on a disabled
// logger is a no-op.
func (l *Logger) Log(name string, kind storage.Kind, success bool, errorMsg string) error {
	if !l.Enabled() {
		return nil
	}

	status := "OK"
	if !success {
		status = "FAIL"
	}
	line := fmt.Sprintf("%s|%s:%s|%s", l.clock().UTC().Format(timeFormat), kind, name, status)
	if !success && errorMsg != "" {
		if utf8.RuneCountInString(errorMsg) > maxErrorLen {
			errorMsg = string([]rune(errorMsg)[:maxErrorLen])
		}
		line += "|" + errorMsg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Close closes the underlying file. Safe to call more than once.
func (l *Logger) Close() error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}
