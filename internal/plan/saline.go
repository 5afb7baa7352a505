package plan

import (
	"fmt"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/layout"
)

// SalineBuffer is the extra volume in µL aspirated with every dispense
// group and blown back out at the source, keeping an air cushion so the
// last dispense does not drip short.
const SalineBuffer = 2.0

// Draw is one NaCl delivery: a volume bound for a resolved destination.
type Draw struct {
	Dest   labware.Location `json:"dest"`
	Volume float64          `json:"volume"`
}

// Dispatch aggregates every NaCl draw from one source well so the source
// is visited as few times as possible.
type Dispatch struct {
	Source string  `json:"source"` // tube-rack well holding the NaCl
	Total  float64 `json:"total"`  // sum of draw volumes
	Draws  []Draw  `json:"draws"`  // in mix order
}

// BuildSalineDispatch resolves where each mix's NaCl must physically go and
// groups the draws by source well in first-seen order.
//
// A mix with small components receives its NaCl in its final intermediate
// vessel, where the whole mix is assembled; without an assigned vessel the
// draw falls back to the destination well. Mixes without small components
// take their NaCl directly at the destination. Zero and negative NaCl
// volumes produce no draw. Volumes are the mix-scaled ones: this is liquid
// that actually moves.
func BuildSalineDispatch(mixes []layout.Mix, vessels Assignments, rack, plate string) []Dispatch {
	var order []string
	bySource := make(map[string]*Dispatch)

	for i := range mixes {
		mix := &mixes[i]
		saline := mix.Saline()
		volume := mix.Scaled(saline)
		if volume <= 0 {
			continue
		}

		dest := labware.At(plate, mix.Dest)
		if SmallCount(mix) > 0 {
			if vessel := vessels[mix.Dest].Final; vessel != "" {
				dest = labware.At(rack, vessel)
			}
		}

		d := bySource[saline.Source]
		if d == nil {
			d = &Dispatch{Source: saline.Source}
			bySource[saline.Source] = d
			order = append(order, saline.Source)
		}
		d.Total += volume
		d.Draws = append(d.Draws, Draw{Dest: dest, Volume: volume})
	}

	dispatches := make([]Dispatch, 0, len(order))
	for _, source := range order {
		dispatches = append(dispatches, *bySource[source])
	}
	return dispatches
}

// TipClass selects the pipette class for this source: the low-volume
// pipette when the whole demand plus buffer fits a 50 µL tip, the
// high-volume one otherwise.
func (d Dispatch) TipClass() labware.TipClass {
	if d.Total+SalineBuffer <= labware.Tip50.Capacity() {
		return labware.Tip50
	}
	return labware.Tip200
}

// Pack splits the draws into dispense groups for the given tip class using
// a greedy first-fit: draws accumulate into the current group while the
// running total stays within capacity minus buffer, and a draw that would
// overflow closes the group and opens the next.
//
// A single draw beyond the usable capacity can never be dispensed in one
// stroke and is an error at plan time, before any liquid moves.
func (d Dispatch) Pack(class labware.TipClass) ([][]Draw, error) {
	usable := class.Capacity() - SalineBuffer

	var groups [][]Draw
	var group []Draw
	var running float64

	for _, draw := range d.Draws {
		if draw.Volume > usable {
			return nil, fmt.Errorf("NaCl draw of %.1f µL for %s exceeds the %.0f µL usable in a %s tip",
				draw.Volume, draw.Dest, usable, class)
		}
		if running+draw.Volume > usable {
			groups = append(groups, group)
			group = []Draw{draw}
			running = draw.Volume
			continue
		}
		group = append(group, draw)
		running += draw.Volume
	}
	if len(group) > 0 {
		groups = append(groups, group)
	}
	return groups, nil
}

// GroupTotal sums a dispense group's volumes; the aspirate for the group is
// this plus the buffer.
func GroupTotal(group []Draw) float64 {
	var total float64
	for _, draw := range group {
		total += draw.Volume
	}
	return total
}
