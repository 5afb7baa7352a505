// Package plan holds the hardware-independent planning logic for mix
// construction: rescaling sub-µL volumes, allocating intermediate vessels,
// batching NaCl dispensing, and sequencing tip consumption. Everything here
// operates on parsed layout data and plain state; the only hardware contact
// is through the narrow interfaces the tip sequencer accepts.
package plan

import "fmt"

// ExhaustedError reports that a finite consumable (intermediate vessel pool
// or a tip rack with no reserve) ran out mid-plan. It is fatal: remaining
// work halts, and completed physical steps are never rolled back because
// dispensed liquid cannot be unpoured.
type ExhaustedError struct {
	Resource string // what ran out, e.g. "final-pool vessels", "200 µL tips"
	Detail   string // what was being served when it ran out
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("out of %s: %s", e.Resource, e.Detail)
}
