package plan

import (
	"fmt"

	"github.com/dyluth/flexprep/internal/layout"
)

// VesselPool holds the two disjoint queues of spare tube-rack wells used
// for intermediate dilution. The small pool stages pooled sub-µL aliquots;
// the final pool is where a mix is assembled before the single transfer to
// its destination. The pools never share a vessel.
type VesselPool struct {
	small []string
	final []string
}

// NewVesselPool builds a pool from the two well queues, front first.
func NewVesselPool(small, final []string) *VesselPool {
	return &VesselPool{
		small: append([]string(nil), small...),
		final: append([]string(nil), final...),
	}
}

// SmallLeft returns how many small-pool vessels remain.
func (p *VesselPool) SmallLeft() int { return len(p.small) }

// FinalLeft returns how many final-pool vessels remain.
func (p *VesselPool) FinalLeft() int { return len(p.final) }

// Assignment records the intermediate vessels a mix was given. Empty
// strings mean the stage is not used.
type Assignment struct {
	Small string `json:"small,omitempty"`
	Final string `json:"final,omitempty"`
}

// Assignments maps a mix's destination well to its vessel assignment.
// Written once by AllocateVessels, never reassigned.
type Assignments map[string]Assignment

// AllocateVessels walks the mixes in order and pops vessels for the ones
// that need intermediate dilution: two or more small components take one
// vessel from each pool, exactly one small component takes a final-pool
// vessel only, and mixes without small components take nothing.
//
// An empty pool mid-allocation returns the assignments made so far together
// with an ExhaustedError naming the mix that could not be served.
func AllocateVessels(mixes []layout.Mix, pool *VesselPool) (Assignments, error) {
	assigned := make(Assignments)

	for i := range mixes {
		mix := &mixes[i]
		switch n := SmallCount(mix); {
		case n >= 2:
			if len(pool.small) == 0 || len(pool.final) == 0 {
				return assigned, &ExhaustedError{
					Resource: "intermediate vessels",
					Detail:   fmt.Sprintf("mix %d (destination %s) needs a staging and a final vessel but the pool is empty", mix.Index+1, mix.Dest),
				}
			}
			assigned[mix.Dest] = Assignment{
				Small: pool.popSmall(),
				Final: pool.popFinal(),
			}
		case n == 1:
			if len(pool.final) == 0 {
				return assigned, &ExhaustedError{
					Resource: "intermediate vessels",
					Detail:   fmt.Sprintf("mix %d (destination %s) needs a final vessel but the pool is empty", mix.Index+1, mix.Dest),
				}
			}
			assigned[mix.Dest] = Assignment{Final: pool.popFinal()}
		}
	}

	return assigned, nil
}

func (p *VesselPool) popSmall() string {
	v := p.small[0]
	p.small = p.small[1:]
	return v
}

func (p *VesselPool) popFinal() string {
	v := p.final[0]
	p.final = p.final[1:]
	return v
}
