package layout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is the raw cell grid read from the layout CSV, after normalization.
type Table [][]string

// ReadTable reads a layout CSV. Rows may have differing lengths (spreadsheet
// exports pad inconsistently) and every cell is stripped of byte-order marks
// and surrounding whitespace before any parsing happens.
func ReadTable(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read layout CSV: %w", err)
	}

	t := Table(rows)
	t.normalize()
	return t, nil
}

// ReadTableFile reads a layout CSV from disk.
func ReadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open layout file: %w", err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// normalize strips BOM characters and surrounding whitespace from every
// cell in place. Spreadsheet exports routinely carry both.
func (t Table) normalize() {
	for _, row := range t {
		for i, cell := range row {
			row[i] = strings.TrimSpace(strings.ReplaceAll(cell, "\uFEFF", ""))
		}
	}
}

// cell returns the cell at (row, col), or "" when the table is ragged and
// the position does not exist.
func (t Table) cell(row, col int) string {
	if row < 0 || row >= len(t) {
		return ""
	}
	if col < 0 || col >= len(t[row]) {
		return ""
	}
	return t[row][col]
}

// hasRow reports whether the table contains the given row index.
func (t Table) hasRow(row int) bool {
	return row >= 0 && row < len(t)
}
