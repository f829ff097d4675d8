// Package carsdb turns the processed dataset into the single-file SQLite
// database the advisor queries. The cars table schema derives from the
// feature dictionary, so the two never drift apart.
package carsdb

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
)

// indexedColumns get a lookup index when present in the schema; they back
// the advisor's most common filters.
var indexedColumns = []string{
	"car_brand",
	"car_model",
	"car_trim",
	"Price_EGP",
	"body_type",
	"Transmission_Type",
	"Origin_Country",
	"Engine_Turbo",
}

// Store wraps the cars database connection.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cars database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSchema drops and recreates the cars table with one column per
// dictionary output column, typed from the column's kind, plus the row id
// and the three identity columns. Indexes are created for every indexed
// column the schema actually has.
func (s *Store) CreateSchema(ctx context.Context, dict *dictionary.Dictionary) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS cars`); err != nil {
		return fmt.Errorf("dropping cars table: %w", err)
	}

	defs := []string{
		"id INTEGER PRIMARY KEY AUTOINCREMENT",
		"car_brand TEXT",
		"car_model TEXT",
		"car_trim TEXT",
	}
	for _, col := range dict.Columns() {
		kind, _ := dict.KindOf(col)
		defs = append(defs, fmt.Sprintf("%s %s", col, sqlType(kind)))
	}

	stmt := fmt.Sprintf("CREATE TABLE cars (\n    %s\n)", strings.Join(defs, ",\n    "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating cars table: %w", err)
	}

	have := s.schemaColumns(dict)
	for _, col := range indexedColumns {
		if !have[col] {
			continue
		}
		idx := fmt.Sprintf("CREATE INDEX idx_%s ON cars (%s)", col, col)
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("creating index on %s: %w", col, err)
		}
	}

	slog.Info("cars schema created", "columns", len(defs)-1)
	return nil
}

// ImportCSV loads the processed dataset into the cars table. Empty cells
// become NULL, boolean cells become 1 or 0, numeric cells are parsed to
// their declared type. CSV columns the schema does not know are skipped.
// Returns the number of imported rows.
func (s *Store) ImportCSV(ctx context.Context, path string, dict *dictionary.Dictionary) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening processed dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("reading processed dataset %s: %w", path, err)
	}
	if len(records) < 1 {
		return 0, fmt.Errorf("processed dataset %s has no header", path)
	}

	have := s.schemaColumns(dict)
	var cols []string
	var srcIdx []int
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		if !have[name] {
			slog.Warn("dataset column not in schema, skipped", "column", name)
			continue
		}
		cols = append(cols, name)
		srcIdx = append(srcIdx, i)
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("processed dataset %s shares no columns with the schema", path)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	insert := fmt.Sprintf("INSERT INTO cars (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("preparing import statement: %w", err)
	}
	defer stmt.Close()

	imported := 0
	for _, record := range records[1:] {
		args := make([]any, len(cols))
		for j, i := range srcIdx {
			args[j] = cellValue(record, i, cols[j], dict)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return imported, fmt.Errorf("inserting row %d: %w", imported+1, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return imported, fmt.Errorf("committing import: %w", err)
	}
	slog.Info("dataset imported", "rows", imported)
	return imported, nil
}

func (s *Store) schemaColumns(dict *dictionary.Dictionary) map[string]bool {
	have := map[string]bool{"car_brand": true, "car_model": true, "car_trim": true}
	for _, col := range dict.Columns() {
		have[col] = true
	}
	return have
}

// cellValue converts one CSV cell to its bind value. Unparsable numerics
// fall back to NULL rather than poisoning the typed column.
func cellValue(record []string, i int, col string, dict *dictionary.Dictionary) any {
	if i >= len(record) {
		return nil
	}
	raw := strings.TrimSpace(record[i])

	kind, known := dict.KindOf(col)
	if !known {
		// Identity columns.
		return raw
	}

	switch kind {
	case dictionary.KindBool:
		if raw == "True" {
			return 1
		}
		return 0
	case dictionary.KindInt:
		if raw == "" {
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case dictionary.KindFloat:
		if raw == "" {
			return nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		if raw == "" {
			return nil
		}
		return raw
	}
}

func sqlType(kind dictionary.Kind) string {
	switch kind {
	case dictionary.KindInt:
		return "INTEGER"
	case dictionary.KindFloat:
		return "REAL"
	case dictionary.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
