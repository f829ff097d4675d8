// Package postprocess cleans a raw crawl dataset into the file the database
// import consumes: noisy columns dropped, rows that carry nothing beyond
// their identity removed, rows without a plausible official price removed.
package postprocess

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
)

// noisyColumns were scraped too unreliably to keep.
var noisyColumns = []string{
	"Multimedia_System",
	"Fog_Lights",
	"Touch_Screen",
	"Alarm_or_Anti_Theft_System",
}

const (
	priceColumn   = "Official_Price_EGP"
	minValidPrice = 1000
	// The leading identity columns: car_brand, car_model, car_trim.
	identityColumns = 3
)

// Report summarizes one cleanup pass.
type Report struct {
	ColumnsBefore  int
	ColumnsAfter   int
	DroppedColumns []string
	RowsBefore     int
	EmptyRows      int
	PricelessRows  int
	RowsKept       int
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "columns: %d -> %d (dropped %s)\n",
		r.ColumnsBefore, r.ColumnsAfter, strings.Join(r.DroppedColumns, ", "))
	fmt.Fprintf(&b, "rows: %d -> %d (identity-only: %d, missing or implausible price: %d)\n",
		r.RowsBefore, r.RowsKept, r.EmptyRows, r.PricelessRows)
	return b.String()
}

// Run reads the raw dataset at input and writes the cleaned file to output.
func Run(input, output string) (*Report, error) {
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("opening raw dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading raw dataset %s: %w", input, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("raw dataset %s has no header", input)
	}

	header := records[0]
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	report := &Report{ColumnsBefore: len(header), RowsBefore: len(records) - 1}

	keep := make([]int, 0, len(header))
	for i, name := range header {
		if slices.Contains(noisyColumns, name) {
			report.DroppedColumns = append(report.DroppedColumns, name)
			continue
		}
		keep = append(keep, i)
	}
	report.ColumnsAfter = len(keep)

	priceIdx := -1
	cleaned := [][]string{project(header, keep)}
	for i, name := range cleaned[0] {
		if name == priceColumn {
			priceIdx = i
		}
	}
	if priceIdx < 0 {
		slog.Warn("price column missing, price filter skipped", "column", priceColumn)
	}

	for _, record := range records[1:] {
		row := project(record, keep)
		if identityOnly(row) {
			report.EmptyRows++
			continue
		}
		if priceIdx >= 0 && !priceValid(row[priceIdx]) {
			report.PricelessRows++
			continue
		}
		cleaned = append(cleaned, row)
	}
	report.RowsKept = len(cleaned) - 1

	out, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("creating processed dataset: %w", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.WriteAll(cleaned); err != nil {
		return nil, fmt.Errorf("writing processed dataset %s: %w", output, err)
	}
	return report, nil
}

func project(record []string, keep []int) []string {
	row := make([]string, 0, len(keep))
	for _, i := range keep {
		if i < len(record) {
			row = append(row, strings.TrimSpace(record[i]))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// identityOnly reports whether the row has its identity columns filled and
// nothing else.
func identityOnly(row []string) bool {
	if len(row) <= identityColumns {
		return true
	}
	for _, v := range row[:identityColumns] {
		if v == "" {
			return false
		}
	}
	for _, v := range row[identityColumns:] {
		if v != "" {
			return false
		}
	}
	return true
}

func priceValid(raw string) bool {
	price, err := strconv.ParseFloat(raw, 64)
	return err == nil && price >= minValidPrice
}
