// Package labware models the deck elements the pipetting protocols touch:
// well grids (plates, tube racks, tip racks), pipette tip capacity classes,
// and deck locations with vertical offsets. Everything here is a plain value
// type so planning code can be exercised without a robot.
//
// Wells are named in the conventional row-letter/column-number form ("A1",
// "C12"). Enumeration order is always row-major (A1, A2, ... A12, B1, ...),
// which matches how tips are consumed from a rack.
package labware

import (
	"fmt"
	"strconv"
	"strings"
)

// Geometry describes a rectangular well grid.
type Geometry struct {
	Name    string // human-readable labware kind, used in error messages
	Rows    string // row letters in top-to-bottom order, e.g. "ABCDEFGH"
	Columns int    // number of columns, numbered from 1
}

// Stock geometries for the deck elements the protocols use.
var (
	// Plate96 is a standard 96-well plate (PCR or flat-bottom).
	Plate96 = Geometry{Name: "96-well plate", Rows: "ABCDEFGH", Columns: 12}

	// TubeRack24 is a 24-position Eppendorf tube rack.
	TubeRack24 = Geometry{Name: "24-tube rack", Rows: "ABCD", Columns: 6}

	// TipRack96 is a Flex 96-tip rack (any capacity class).
	TipRack96 = Geometry{Name: "96-tip rack", Rows: "ABCDEFGH", Columns: 12}
)

// ParseWell splits a well name into its row letter and column number.
// Well names are case-sensitive: rows are uppercase letters.
func ParseWell(well string) (row byte, column int, err error) {
	if len(well) < 2 {
		return 0, 0, fmt.Errorf("invalid well name %q: expected row letter followed by column number", well)
	}
	row = well[0]
	if row < 'A' || row > 'Z' {
		return 0, 0, fmt.Errorf("invalid well name %q: row must be an uppercase letter", well)
	}
	column, err = strconv.Atoi(well[1:])
	if err != nil || column < 1 {
		return 0, 0, fmt.Errorf("invalid well name %q: column must be a positive number", well)
	}
	return row, column, nil
}

// Contains reports whether the named well exists on this geometry.
func (g Geometry) Contains(well string) bool {
	row, col, err := ParseWell(well)
	if err != nil {
		return false
	}
	return strings.IndexByte(g.Rows, row) >= 0 && col <= g.Columns
}

// NumWells returns the total well count.
func (g Geometry) NumWells() int {
	return len(g.Rows) * g.Columns
}

// Wells enumerates every well name in row-major order.
func (g Geometry) Wells() []string {
	wells := make([]string, 0, g.NumWells())
	for i := 0; i < len(g.Rows); i++ {
		for col := 1; col <= g.Columns; col++ {
			wells = append(wells, fmt.Sprintf("%c%d", g.Rows[i], col))
		}
	}
	return wells
}

// Index returns the row-major position of a well on this geometry.
func (g Geometry) Index(well string) (int, error) {
	row, col, err := ParseWell(well)
	if err != nil {
		return 0, err
	}
	r := strings.IndexByte(g.Rows, row)
	if r < 0 || col > g.Columns {
		return 0, fmt.Errorf("well %s does not exist on a %s", well, g.Name)
	}
	return r*g.Columns + (col - 1), nil
}

// WellsFrom enumerates wells in row-major order starting at the given well.
// This is how a tip rack is consumed when the operator selects a starting tip.
func (g Geometry) WellsFrom(start string) ([]string, error) {
	i, err := g.Index(start)
	if err != nil {
		return nil, fmt.Errorf("starting well %s not found on %s: %w", start, g.Name, err)
	}
	return g.Wells()[i:], nil
}

// Ref selects the vertical reference point within a well.
type Ref string

const (
	// RefDefault lets the robot use its default position for the operation.
	RefDefault Ref = ""

	// RefBottom positions relative to the well bottom (offset in mm, upward).
	RefBottom Ref = "bottom"

	// RefTop positions relative to the well top (offset in mm, negative = into the well).
	RefTop Ref = "top"
)

// Location identifies a well on a named deck item, optionally with a
// vertical reference. The deck item name is whatever the protocol calls the
// labware ("tubes", "pcr", "tips50"); the robot adapter maps it to a slot.
type Location struct {
	Labware string  `json:"labware"`
	Well    string  `json:"well"`
	Ref     Ref     `json:"ref,omitempty"`
	Offset  float64 `json:"offset_mm,omitempty"`
}

// At builds a Location with the default vertical reference.
func At(labware, well string) Location {
	return Location{Labware: labware, Well: well}
}

// Bottom returns a copy of the location referenced to the well bottom.
func (l Location) Bottom(offsetMM float64) Location {
	l.Ref = RefBottom
	l.Offset = offsetMM
	return l
}

// Top returns a copy of the location referenced to the well top.
// Negative offsets reach down into the well.
func (l Location) Top(offsetMM float64) Location {
	l.Ref = RefTop
	l.Offset = offsetMM
	return l
}

func (l Location) String() string {
	s := l.Labware + ":" + l.Well
	if l.Ref != RefDefault {
		s += fmt.Sprintf("@%s%+.1fmm", l.Ref, l.Offset)
	}
	return s
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Labware == "" && l.Well == ""
}

// TipClass identifies a pipette tip capacity class by its volume in µL.
// The protocols use the 50 and 200 µL classes for mix construction and the
// 200 and 1000 µL classes for aliquoting.
type TipClass int

const (
	Tip50   TipClass = 50
	Tip200  TipClass = 200
	Tip1000 TipClass = 1000
)

// Capacity returns the nominal tip volume in µL.
func (c TipClass) Capacity() float64 {
	return float64(c)
}

func (c TipClass) String() string {
	return fmt.Sprintf("%d µL", int(c))
}
