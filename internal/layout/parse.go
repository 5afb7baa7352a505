package layout

import (
	"fmt"
	"strconv"

	"github.com/dyluth/flexprep/internal/labware"
)

// Block structure of the layout table. Every mix occupies BlockRows
// consecutive rows; the interesting rows sit at fixed offsets inside the
// block. The destination well is column 0 of the name row; component
// columns run from 1 upward.
const (
	// BlockRows is the number of table rows one mix occupies.
	BlockRows = 15

	// NameRowOffset is the header row: destination well in column 0,
	// component names in columns 1..max.
	NameRowOffset = 0

	// VolumeRowOffset is the per-component volume row.
	VolumeRowOffset = 12

	// SourceRowOffset is the per-component source-well row.
	SourceRowOffset = 13
)

// Parse reads mixCount mixes of up to maxComponents components each from
// the table. Blank volume cells mean "no component", negative volumes are
// dropped, and a missing source cell falls back to the synthesized well
// A<column+1>. The last surviving component of each mix is the NaCl reagent
// by convention; its source well is registered under SalineName.
//
// Parse is all-or-nothing: the first structural problem aborts with a
// *Error naming the mix and table row, and no mixes are returned.
func Parse(t Table, mixCount, maxComponents int) ([]Mix, *Registry, error) {
	if mixCount < 1 {
		return nil, nil, fmt.Errorf("mix count must be at least 1, got %d", mixCount)
	}
	if maxComponents < 1 {
		return nil, nil, fmt.Errorf("max components must be at least 1, got %d", maxComponents)
	}

	mixes := make([]Mix, 0, mixCount)
	registry := NewRegistry()

	for m := 0; m < mixCount; m++ {
		nameRow := m*BlockRows + NameRowOffset
		volumeRow := m*BlockRows + VolumeRowOffset
		sourceRow := m*BlockRows + SourceRowOffset

		// The volume and source rows sit deepest in the block; if either is
		// missing the table simply does not contain this mix.
		if !t.hasRow(volumeRow) {
			return nil, nil, &Error{Mix: m, Row: volumeRow, Msg: "volume row missing: table has too few rows for this mix"}
		}
		if !t.hasRow(sourceRow) {
			return nil, nil, &Error{Mix: m, Row: sourceRow, Msg: "source-well row missing: table has too few rows for this mix"}
		}

		dest := t.cell(nameRow, 0)
		if dest == "" {
			return nil, nil, &Error{Mix: m, Row: nameRow, Msg: "destination well missing in column 0"}
		}

		mix := Mix{Index: m, Dest: dest, ScaleFactor: 1}

		for col := 1; col <= maxComponents; col++ {
			volCell := t.cell(volumeRow, col)
			if volCell == "" {
				continue
			}

			vol, err := strconv.ParseFloat(volCell, 64)
			if err != nil {
				return nil, nil, &Error{Mix: m, Row: volumeRow, Msg: fmt.Sprintf("bad volume %q in column %d", volCell, col)}
			}
			if vol < 0 {
				continue
			}

			source := t.cell(sourceRow, col)
			if source == "" {
				source = fmt.Sprintf("A%d", col+1)
			}

			name := t.cell(nameRow, col)
			mix.Components = append(mix.Components, Component{Name: name, Volume: vol, Source: source})
			registry.Add(name, source)
		}

		// The saline source belongs to the registry under its own name,
		// whatever the header column says.
		if saline := mix.Saline(); saline.Source != "" {
			registry.Add(SalineName, saline.Source)
		}

		mixes = append(mixes, mix)
	}

	return mixes, registry, nil
}

// ValidateWells checks every destination against the destination plate and
// every source against the tube rack, before anything physical happens.
// A mix with no components at all is rejected here too: executing it would
// silently produce an empty destination well.
func ValidateWells(mixes []Mix, plate, rack labware.Geometry) error {
	if len(mixes) > plate.NumWells() {
		return &Error{Mix: plate.NumWells(), Row: -1,
			Msg: fmt.Sprintf("%d mixes exceed the %d wells of the %s", len(mixes), plate.NumWells(), plate.Name)}
	}

	for i := range mixes {
		mix := &mixes[i]
		if len(mix.Components) == 0 {
			return &Error{Mix: mix.Index, Row: -1, Msg: "mix has no components"}
		}
		if !plate.Contains(mix.Dest) {
			return &Error{Mix: mix.Index, Row: -1,
				Msg: fmt.Sprintf("destination well %s does not exist on the %s", mix.Dest, plate.Name)}
		}
		for _, c := range mix.Components {
			if !rack.Contains(c.Source) {
				return &Error{Mix: mix.Index, Row: -1,
					Msg: fmt.Sprintf("source well %s does not exist on the %s", c.Source, rack.Name)}
			}
		}
	}
	return nil
}
