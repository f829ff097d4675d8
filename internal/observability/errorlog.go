// Package observability provides console logging setup and the append-only
// error log file shared by all crawl components.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// timestampLayout is the fixed layout used for error log lines. The log file
// is consumed by humans auditing past runs, so the format never changes.
const timestampLayout = "2006-01-02 15:04:05"

// ErrorLog appends failure lines to a persistent log file. The file is opened
// in append mode and is never truncated, so history accumulates across runs.
type ErrorLog struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// OpenErrorLog opens (or creates) the error log file at path.
func OpenErrorLog(path string) (*ErrorLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log %s: %w", path, err)
	}
	return &ErrorLog{f: f, now: time.Now}, nil
}

// Errorf records a failure both to the console logger and to the log file.
// File lines use the fixed format "TIMESTAMP - ERROR: message".
func (l *ErrorLog) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Error(msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.f, "%s - ERROR: %s\n", l.now().Format(timestampLayout), msg)
}

// Close closes the underlying file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// SetupConsole configures the default slog logger for console output.
// Verbose mode lowers the level to debug.
func SetupConsole(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
