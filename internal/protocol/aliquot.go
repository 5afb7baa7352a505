package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/plan"
	"github.com/dyluth/flexprep/internal/robot"
)

// Flow rates in µL/s. The reagent is handled gently; only in-well mixing
// runs at full speed.
const (
	slowAspirateRate = 35
	slowDispenseRate = 57
	fastFlowRate     = 716
)

const (
	// maxDistributionDraw caps a reagent refill at 90% of the 1000-class
	// tip so the air gap never overflows it.
	maxDistributionDraw = 900.0

	// travelAirGap holds the reagent in the tip between wells.
	travelAirGap = 5.0

	// aliquotsPerMix is the fan-out: each mix feeds four cell wells.
	aliquotsPerMix = 4
)

// AliquotDeck names the deck items the aliquoting run touches.
type AliquotDeck struct {
	Module string // heater-shaker module carrying the mix plate
	Plate  string // PCR plate holding the mix wells
	Tubes  string // tube rack with the reagent Eppendorf
	Cells  string // flat-bottom cell plate receiving the aliquots
}

// AliquotParams are the operator knobs for an aliquoting run.
type AliquotParams struct {
	MixCount      int
	ReagentVolume float64 // µL of reagent into each mix well
	AliquotVolume float64 // µL per cell well
	ReagentTube   string  // tube-rack well holding the premixed reagent

	// FirstMixWell, MixRows and MixColumnsPerRow describe the rectangle of
	// mix wells on the PCR plate, row by row from the starting well.
	FirstMixWell     string
	MixRows          int
	MixColumnsPerRow int

	Delay        time.Duration // incubation between distribution and aliquoting
	Premix       bool          // stir the reagent before each refill
	PremixVolume float64
}

// AliquotPlan is the compile product: the resolved mix wells and the four
// cell-plate targets each one feeds.
type AliquotPlan struct {
	Deck   AliquotDeck
	Params AliquotParams

	MixWells []string
	Targets  [][]string
}

// CompileAliquot validates the parameters and resolves the plate geometry.
// Everything that can go wrong here goes wrong before the arm moves.
func CompileAliquot(deck AliquotDeck, params AliquotParams) (*AliquotPlan, error) {
	if params.MixCount < 1 {
		return nil, fmt.Errorf("mix count must be at least 1, got %d", params.MixCount)
	}
	if params.ReagentVolume <= 0 || params.AliquotVolume <= 0 {
		return nil, fmt.Errorf("reagent and aliquot volumes must be positive")
	}
	if params.ReagentVolume > maxDistributionDraw {
		return nil, fmt.Errorf("reagent volume of %.1f µL exceeds the %.0f µL a refill can draw",
			params.ReagentVolume, maxDistributionDraw)
	}
	if params.Premix && params.PremixVolume <= 0 {
		return nil, fmt.Errorf("premix volume must be positive when premixing is on")
	}
	if !labware.TubeRack24.Contains(params.ReagentTube) {
		return nil, fmt.Errorf("reagent tube %q is not a well on the %s", params.ReagentTube, labware.TubeRack24.Name)
	}

	draw := params.AliquotVolume * aliquotsPerMix
	if draw > labware.Tip1000.Capacity() {
		return nil, fmt.Errorf("%d aliquots of %.1f µL exceed the %s tip",
			aliquotsPerMix, params.AliquotVolume, labware.Tip1000)
	}
	if draw <= labware.Tip200.Capacity() && params.ReagentVolume > labware.Tip200.Capacity() {
		return nil, fmt.Errorf("mixing %.1f µL before a %.1f µL draw does not fit the %s tip",
			params.ReagentVolume, draw, labware.Tip200)
	}

	wells, err := mixRectangle(params.FirstMixWell, params.MixRows, params.MixColumnsPerRow)
	if err != nil {
		return nil, err
	}
	if len(wells) < params.MixCount {
		return nil, fmt.Errorf("only %d wells in the mix rectangle for %d mixes", len(wells), params.MixCount)
	}
	wells = wells[:params.MixCount]

	targets := make([][]string, len(wells))
	for i := range wells {
		targets[i] = cellTargets(i)
	}

	return &AliquotPlan{
		Deck:     deck,
		Params:   params,
		MixWells: wells,
		Targets:  targets,
	}, nil
}

// mixRectangle lays out the mix wells row by row from the starting well.
func mixRectangle(first string, rows, columns int) ([]string, error) {
	if rows < 1 || columns < 1 {
		return nil, fmt.Errorf("mix rectangle needs at least one row and one column")
	}
	rowLetter, col, err := labware.ParseWell(first)
	if err != nil {
		return nil, fmt.Errorf("first mix well: %w", err)
	}
	plate := labware.Plate96
	rowIndex := strings.IndexByte(plate.Rows, rowLetter)
	if rowIndex < 0 || col > plate.Columns {
		return nil, fmt.Errorf("first mix well %s is not on a %s", first, plate.Name)
	}
	if rowIndex+rows > len(plate.Rows) {
		return nil, fmt.Errorf("%d mix rows starting at %s run off the plate", rows, first)
	}
	if col+columns-1 > plate.Columns {
		return nil, fmt.Errorf("%d mix columns starting at %s run off the plate", columns, first)
	}

	wells := make([]string, 0, rows*columns)
	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			wells = append(wells, fmt.Sprintf("%c%d", plate.Rows[rowIndex+r], col+c))
		}
	}
	return wells, nil
}

// cellTargets maps mix index i to its four cell-plate wells. The plate is
// carved into four 6-column quadrant blocks filled in order: block 0 is
// rows A–D of the left half, block 1 rows E–H left, blocks 2 and 3 repeat
// on the right half.
func cellTargets(i int) []string {
	block := (i / 6) % 4
	col := (i % 6) + 1
	if block == 2 || block == 3 {
		col += 6
	}

	rows := "ABCD"
	if block%2 == 1 {
		rows = "EFGH"
	}

	targets := make([]string, 0, aliquotsPerMix)
	for _, r := range rows {
		targets = append(targets, fmt.Sprintf("%c%d", r, col))
	}
	return targets
}

// AliquotRun executes a compiled aliquot plan.
type AliquotRun struct {
	plan *AliquotPlan
	ctrl robot.Controller
	tips *plan.Sequencer
}

// NewAliquotRun binds a compiled plan to a controller and a tip supply.
func NewAliquotRun(p *AliquotPlan, ctrl robot.Controller, tips *plan.Sequencer) *AliquotRun {
	return &AliquotRun{plan: p, ctrl: ctrl, tips: tips}
}

// Usage reports per-class tip consumption so far.
func (r *AliquotRun) Usage() []plan.Usage {
	return r.tips.Report()
}

// Execute distributes the reagent across the mix wells, waits out the
// incubation, then carries each mix into its four cell wells.
func (r *AliquotRun) Execute(ctx context.Context) error {
	r.logEvent("run_started", map[string]interface{}{
		"mixes":       len(r.plan.MixWells),
		"reagent_vol": r.plan.Params.ReagentVolume,
		"aliquot_vol": r.plan.Params.AliquotVolume,
	})

	if err := r.ctrl.CloseLabwareLatch(ctx, r.plan.Deck.Module); err != nil {
		return r.halt(ctx, err)
	}

	if err := r.distributeReagent(ctx); err != nil {
		return r.halt(ctx, err)
	}

	r.ctrl.Comment(ctx, fmt.Sprintf("incubating for %s", r.plan.Params.Delay))
	if err := r.ctrl.Delay(ctx, r.plan.Params.Delay); err != nil {
		return r.halt(ctx, err)
	}
	r.logEvent("incubation_done", map[string]interface{}{"delay": r.plan.Params.Delay.String()})

	if err := r.aliquotMixes(ctx); err != nil {
		return r.halt(ctx, err)
	}

	if err := r.ctrl.OpenLabwareLatch(ctx, r.plan.Deck.Module); err != nil {
		return r.halt(ctx, err)
	}

	r.ctrl.Comment(ctx, fmt.Sprintf("protocol complete: %d mixes aliquoted", len(r.plan.MixWells)))
	r.reportTips(ctx)
	r.logEvent("run_completed", map[string]interface{}{
		"mixes": len(r.plan.MixWells),
	})
	return nil
}

func (r *AliquotRun) halt(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		r.ctrl.Pause(ctx, fmt.Sprintf("run halted: %v", err))
	}
	r.logEvent("run_halted", map[string]interface{}{"error": err.Error()})
	return err
}

// distributeReagent fills every mix well from the reagent tube with one
// held 1000-class tip, refilling whenever the tracked volume drops below
// one well's worth. The dispense lands at the well top with an air gap
// after it, so nothing drips during travel.
func (r *AliquotRun) distributeReagent(ctx context.Context) error {
	mount := r.tips.Mount(labware.Tip1000)
	if err := r.ctrl.SetFlowRate(ctx, mount, slowAspirateRate, slowDispenseRate); err != nil {
		return err
	}

	if err := r.tips.PickUp(ctx, r.ctrl, labware.Tip1000); err != nil {
		return err
	}

	source := labware.At(r.plan.Deck.Tubes, r.plan.Params.ReagentTube)
	reagentVol := r.plan.Params.ReagentVolume

	// The residual below one well's worth is written off at each refill;
	// it rides along in the tip and goes out with the drop.
	volInTip := 0.0
	for i, well := range r.plan.MixWells {
		if volInTip < reagentVol {
			remaining := len(r.plan.MixWells) - i
			draw := min(maxDistributionDraw, float64(remaining)*reagentVol)

			if r.plan.Params.Premix {
				if err := r.ctrl.SetFlowRate(ctx, mount, fastFlowRate, fastFlowRate); err != nil {
					return err
				}
				if err := r.ctrl.Mix(ctx, mount, 3, r.plan.Params.PremixVolume, source); err != nil {
					return err
				}
				if err := r.ctrl.SetFlowRate(ctx, mount, slowAspirateRate, slowDispenseRate); err != nil {
					return err
				}
			}

			if err := r.ctrl.Aspirate(ctx, mount, draw, source); err != nil {
				return err
			}
			volInTip = draw
		}

		dest := labware.At(r.plan.Deck.Plate, well).Top(0)
		if err := r.ctrl.Dispense(ctx, mount, reagentVol, dest); err != nil {
			return err
		}
		if err := r.ctrl.AirGap(ctx, mount, travelAirGap); err != nil {
			return err
		}
		volInTip -= reagentVol
	}

	if err := r.tips.Drop(ctx, r.ctrl); err != nil {
		return err
	}
	r.logEvent("reagent_distributed", map[string]interface{}{
		"wells": len(r.plan.MixWells),
	})
	return nil
}

// aliquotMixes carries each mix well into its four cell wells: a fast
// in-well stir, one aspirate of all four aliquots, then four dispenses.
func (r *AliquotRun) aliquotMixes(ctx context.Context) error {
	params := r.plan.Params
	draw := params.AliquotVolume * aliquotsPerMix

	class := labware.Tip1000
	if draw <= labware.Tip200.Capacity() {
		class = labware.Tip200
	}

	for i, well := range r.plan.MixWells {
		if err := r.tips.PickUp(ctx, r.ctrl, class); err != nil {
			return err
		}
		mount := r.tips.Mount(class)
		source := labware.At(r.plan.Deck.Plate, well)

		if err := r.ctrl.SetFlowRate(ctx, mount, fastFlowRate, fastFlowRate); err != nil {
			return err
		}
		if err := r.ctrl.Mix(ctx, mount, 5, params.ReagentVolume, source); err != nil {
			return err
		}
		if err := r.ctrl.SetFlowRate(ctx, mount, slowAspirateRate, slowDispenseRate); err != nil {
			return err
		}

		if err := r.ctrl.Aspirate(ctx, mount, draw, source); err != nil {
			return err
		}
		for _, target := range r.plan.Targets[i] {
			if err := r.ctrl.Dispense(ctx, mount, params.AliquotVolume, labware.At(r.plan.Deck.Cells, target)); err != nil {
				return err
			}
		}

		if err := r.tips.Drop(ctx, r.ctrl); err != nil {
			return err
		}
		r.ctrl.Comment(ctx, fmt.Sprintf("mix %s aliquoted to %v", well, r.plan.Targets[i]))
	}
	return nil
}

func (r *AliquotRun) reportTips(ctx context.Context) {
	for _, u := range r.tips.Report() {
		r.ctrl.Comment(ctx, fmt.Sprintf("%s tips used: %d (%d left)", u.Class, u.Used, u.Remaining))
	}
}

func (r *AliquotRun) logEvent(eventType string, data map[string]interface{}) {
	logEvent("aliquot", eventType, data)
}
