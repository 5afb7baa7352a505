// Package layout turns the operator's plate-layout table into structured
// per-mix plans. The table is a CSV export in which every mix occupies a
// fixed 15-row block: the name header row carries the destination well in
// column 0 and component names in the following columns, and the volume and
// source-well rows sit at fixed offsets inside the block.
//
// Parsing is purely structural: volumes come out exactly as written
// (rescaling is a planning concern, see internal/plan) and no well names are
// checked against labware until ValidateWells runs. A malformed table aborts
// the whole parse; there is no safe way to execute a partial protocol.
package layout

import "fmt"

// SalineName is the display name the NaCl reagent is registered under.
const SalineName = "NaCl (150mM)"

// Component is one reagent contribution to a mix: a plasmid or the NaCl
// reagent, with its source well on the tube rack.
type Component struct {
	Name   string  `json:"name"`   // liquid name from the header row; may be empty
	Volume float64 `json:"volume"` // original volume in µL, exactly as parsed
	Source string  `json:"source"` // source well on the tube rack
}

// Mix is the parsed plan for one transfection mix. Components keep their
// original volumes; the scale factor set by the rescaler applies to all of
// them uniformly, and scaled values are derived on demand so the original
// intent is never lost to rounding.
//
// By convention the last component is the NaCl reagent.
type Mix struct {
	Index       int         `json:"index"` // zero-based position in the table
	Dest        string      `json:"dest"`  // destination well on the PCR plate
	Components  []Component `json:"components"`
	ScaleFactor float64     `json:"scale_factor"` // 1 until the rescaler runs
}

// Saline returns the NaCl component (the last one). A mix with no
// components returns the zero Component, which downstream planning skips.
func (m *Mix) Saline() Component {
	if len(m.Components) == 0 {
		return Component{}
	}
	return m.Components[len(m.Components)-1]
}

// Plasmids returns every component except the NaCl one.
func (m *Mix) Plasmids() []Component {
	if len(m.Components) == 0 {
		return nil
	}
	return m.Components[:len(m.Components)-1]
}

// Scaled returns the component's working volume under the mix's scale factor.
func (m *Mix) Scaled(c Component) float64 {
	return c.Volume * m.ScaleFactor
}

// Total returns the sum of the original component volumes, skipping
// zero-volume placeholders. This is the quantity the destination well must
// finally receive regardless of any internal rescaling.
func (m *Mix) Total() float64 {
	var total float64
	for _, c := range m.Components {
		if c.Volume > 0 {
			total += c.Volume
		}
	}
	return total
}

// Error describes a malformed or invalid layout table. It is always fatal:
// the run aborts before any physical step.
type Error struct {
	Mix int    // zero-based mix index the problem belongs to
	Row int    // zero-based table row, or -1 when no single row applies
	Msg string
}

func (e *Error) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("layout: mix %d (table row %d): %s", e.Mix+1, e.Row+1, e.Msg)
	}
	return fmt.Sprintf("layout: mix %d: %s", e.Mix+1, e.Msg)
}

// Registry maps liquid names to the wells holding them, built once during
// parsing and read-only after. The reverse mapping answers "what is in this
// well" for progress commentary.
type Registry struct {
	names  []string
	byName map[string][]string
	byWell map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string][]string),
		byWell: make(map[string]string),
	}
}

// Add records that the named liquid is present in the given well.
// Duplicate wells for a name are ignored; well order is first-seen.
func (r *Registry) Add(name, well string) {
	if name == "" || well == "" {
		return
	}
	if _, known := r.byName[name]; !known {
		r.names = append(r.names, name)
	}
	for _, w := range r.byName[name] {
		if w == well {
			r.byWell[well] = name
			return
		}
	}
	r.byName[name] = append(r.byName[name], well)
	r.byWell[well] = name
}

// Names returns all liquid names in first-seen order.
func (r *Registry) Names() []string {
	return r.names
}

// WellsOf returns the wells holding the named liquid, in first-seen order.
func (r *Registry) WellsOf(name string) []string {
	return r.byName[name]
}

// NameAt returns the liquid registered at a well.
func (r *Registry) NameAt(well string) (string, bool) {
	name, ok := r.byWell[well]
	return name, ok
}
