// Package testutil provides helpers for building operator layout tables in
// tests. The builders speak the raw 15-rows-per-mix CSV format so tests can
// exercise blank cells, negative volumes, and ragged rows exactly as
// spreadsheet exports produce them.
package testutil

import "strings"

// MixBlock describes one mix block of a layout table. Cell values are raw
// strings: an empty volume means "no component", and an empty source makes
// the parser synthesize one.
type MixBlock struct {
	Dest    string   // destination well, column 0 of the name row
	Names   []string // component names, columns 1..n of the name row
	Volumes []string // volume cells, columns 1..n
	Sources []string // source-well cells, columns 1..n
}

// LayoutRows renders mix blocks into the raw cell grid: 15 rows per mix,
// names on row 0, volumes on row 12, sources on row 13.
func LayoutRows(blocks ...MixBlock) [][]string {
	var rows [][]string
	for _, b := range blocks {
		block := make([][]string, 15)
		for i := range block {
			block[i] = []string{""}
		}
		block[0] = append([]string{b.Dest}, b.Names...)
		block[12] = append([]string{""}, b.Volumes...)
		block[13] = append([]string{""}, b.Sources...)
		rows = append(rows, block...)
	}
	return rows
}

// LayoutCSV renders mix blocks as CSV text, the way the layout file arrives
// from the operator's spreadsheet.
func LayoutCSV(blocks ...MixBlock) string {
	var sb strings.Builder
	for _, row := range LayoutRows(blocks...) {
		sb.WriteString(strings.Join(row, ","))
		sb.WriteString("\n")
	}
	return sb.String()
}
