// Package dataset owns the output file: a header fixed at initialization,
// then one appended line per trim, each written exactly once.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/extraction"
)

// ErrWriteFailuresExceeded reports that appends kept failing back to back
// and the run should stop instead of silently dropping every row.
var ErrWriteFailuresExceeded = errors.New("too many consecutive write failures")

const maxConsecutiveWriteFailures = 5

// Writer appends rows to the dataset file and tracks which trim identities
// were already written. Safe for use from multiple goroutines; the file has
// this writer as its only producer for the run's lifetime.
type Writer struct {
	mu       sync.Mutex
	path     string
	header   []string
	seen     map[string]bool
	failures int
}

// NewWriter prepares a writer whose column order is fixed by the dictionary:
// the three identity columns, then every mapped output column in dictionary
// load order.
func NewWriter(path string, dict *dictionary.Dictionary) *Writer {
	header := append([]string{"car_brand", "car_model", "car_trim"}, dict.Columns()...)
	return &Writer{
		path:   path,
		header: header,
		seen:   make(map[string]bool),
	}
}

// Initialize truncates the dataset file and writes the header row. Must be
// called once before any append.
func (w *Writer) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating dataset %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(w.header); err != nil {
		return fmt.Errorf("writing dataset header: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// ShouldSkip reports whether the identity was already written this run.
func (w *Writer) ShouldSkip(identity string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[identity]
}

// Written returns how many rows have been appended so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Append writes one row under the fixed header order, filling absent fields
// with an empty cell. The identity is marked seen only after the line is on
// disk, so a failed append stays retryable. A row whose identity is already
// seen is dropped silently. After maxConsecutiveWriteFailures failed appends
// in a row the returned error wraps ErrWriteFailuresExceeded.
func (w *Writer) Append(identity string, row *extraction.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen[identity] {
		slog.Debug("duplicate row dropped", "identity", identity)
		return nil
	}

	record := make([]string, 0, len(w.header))
	record = append(record, row.Brand, row.Model, row.Trim)
	for _, col := range w.header[3:] {
		record = append(record, formatValue(row.Fields[col]))
	}

	if err := w.appendRecord(record); err != nil {
		w.failures++
		if w.failures >= maxConsecutiveWriteFailures {
			return fmt.Errorf("appending row for %s: %v: %w", identity, err, ErrWriteFailuresExceeded)
		}
		return fmt.Errorf("appending row for %s: %w", identity, err)
	}

	w.failures = 0
	w.seen[identity] = true
	return nil
}

func (w *Writer) appendRecord(record []string) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// formatValue renders a typed field for the dataset. Booleans keep the
// True/False spelling the downstream database importer expects; absent
// fields render empty.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
