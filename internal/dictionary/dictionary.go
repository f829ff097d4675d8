// Package dictionary loads the feature mapping table that translates raw
// source-site phrases into typed output columns.
package dictionary

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Kind is the declared value type of an output column.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
)

// Mapping is one dictionary entry: a normalized source phrase, the output
// column it feeds, and the column's value kind.
type Mapping struct {
	Key    string
	Column string
	Kind   Kind
}

// Dictionary is the immutable feature mapping table for a run. It keeps two
// orderings of the same entries: the file load order, which fixes the output
// column order, and a longest-key-first order used for scanning page text.
type Dictionary struct {
	byKey     map[string]Mapping
	columns   []string
	scanOrder []Mapping
}

// Load reads a feature mapping CSV with columns website, output_csv and
// d_type. Keys are lowercased and trimmed; when two rows normalize to the
// same key, the last one loaded wins and a warning is logged. Rows with an
// unknown d_type are skipped with a warning.
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature mappings %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature mappings %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("feature mappings %s contain no entries", path)
	}

	keyIdx, columnIdx, kindIdx, err := headerIndices(records[0])
	if err != nil {
		return nil, fmt.Errorf("feature mappings %s: %w", path, err)
	}

	d := &Dictionary{byKey: make(map[string]Mapping)}
	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) <= keyIdx || len(rec) <= columnIdx || len(rec) <= kindIdx {
			slog.Warn("skipping short feature mapping row", "line", line)
			continue
		}

		m := Mapping{
			Key:    strings.ToLower(strings.TrimSpace(rec[keyIdx])),
			Column: strings.TrimSpace(rec[columnIdx]),
			Kind:   Kind(strings.ToLower(strings.TrimSpace(rec[kindIdx]))),
		}
		if m.Key == "" || m.Column == "" {
			slog.Warn("skipping empty feature mapping row", "line", line)
			continue
		}
		switch m.Kind {
		case KindInt, KindFloat, KindBool, KindString:
		default:
			slog.Warn("skipping feature mapping with unknown d_type",
				"line", line, "key", m.Key, "d_type", string(m.Kind))
			continue
		}

		if prev, dup := d.byKey[m.Key]; dup {
			slog.Warn("duplicate feature mapping key, last one wins",
				"key", m.Key, "previous_column", prev.Column, "column", m.Column)
			d.replaceColumn(prev.Column, m.Column)
		} else {
			d.columns = append(d.columns, m.Column)
		}
		d.byKey[m.Key] = m
	}

	if len(d.byKey) == 0 {
		return nil, fmt.Errorf("feature mappings %s contain no usable entries", path)
	}

	d.buildScanOrder()
	slog.Info("loaded feature mappings", "path", path, "entries", len(d.byKey))
	return d, nil
}

// headerIndices locates the three required columns by name so the file can
// carry extra columns or a different column order.
func headerIndices(header []string) (key, column, kind int, err error) {
	key, column, kind = -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "website":
			key = i
		case "output_csv":
			column = i
		case "d_type":
			kind = i
		}
	}
	if key < 0 || column < 0 || kind < 0 {
		return 0, 0, 0, fmt.Errorf("header must name website, output_csv and d_type columns")
	}
	return key, column, kind, nil
}

func (d *Dictionary) replaceColumn(old, new string) {
	for i, c := range d.columns {
		if c == old {
			d.columns[i] = new
			return
		}
	}
}

// buildScanOrder sorts entries longest key first. The ordering is
// load-bearing: a compound phrase such as "minimum installment" must be
// considered before the shorter "installment" it contains, otherwise the
// short key claims the match and the compound column loses its value. Ties
// break alphabetically so the order is stable across runs.
func (d *Dictionary) buildScanOrder() {
	d.scanOrder = make([]Mapping, 0, len(d.byKey))
	for _, m := range d.byKey {
		d.scanOrder = append(d.scanOrder, m)
	}
	sort.Slice(d.scanOrder, func(i, j int) bool {
		if len(d.scanOrder[i].Key) != len(d.scanOrder[j].Key) {
			return len(d.scanOrder[i].Key) > len(d.scanOrder[j].Key)
		}
		return d.scanOrder[i].Key < d.scanOrder[j].Key
	})
}

// Lookup returns the mapping for a normalized key.
func (d *Dictionary) Lookup(key string) (Mapping, bool) {
	m, ok := d.byKey[strings.ToLower(strings.TrimSpace(key))]
	return m, ok
}

// KindOf returns the declared kind of an output column.
func (d *Dictionary) KindOf(column string) (Kind, bool) {
	for _, m := range d.byKey {
		if m.Column == column {
			return m.Kind, true
		}
	}
	return "", false
}

// Columns returns the output column names in file load order.
func (d *Dictionary) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// ScanOrder returns entries sorted longest key first.
func (d *Dictionary) ScanOrder() []Mapping {
	return d.scanOrder
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.byKey)
}
