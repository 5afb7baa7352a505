// Package protocol implements the two Flex runs: building DNA transfection
// mixes from a plate-layout table, and aliquoting a premixed reagent across
// mix wells and into a cell plate. Each run compiles to a plan first, with
// no hardware involved, and then walks the plan against a robot.Controller.
// Compile catches everything that can be caught before liquid moves; once
// execution starts, a failure is terminal and nothing is rolled back.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/layout"
	"github.com/dyluth/flexprep/internal/plan"
	"github.com/dyluth/flexprep/internal/robot"
)

const (
	// DefaultBatchSize groups mixes for progress commentary only; batching
	// has no effect on resource allocation.
	DefaultBatchSize = 12

	// DefaultMaxComponents caps how many table columns are read per mix,
	// NaCl included.
	DefaultMaxComponents = 6

	// stagingScale is the over-draw factor for sub-µL aliquots: they are
	// staged at ×10 so each individual draw is large enough to pipette
	// accurately, then the pooled stage is carried forward at /10.
	stagingScale = 10

	premixCycles = 6
	premixVolume = 200.0
)

// MixDeck names the deck items the mix build touches.
type MixDeck struct {
	Module string // heater-shaker module carrying the destination plate
	Plate  string // PCR destination plate on the module
	Tubes  string // tube rack holding plasmids, NaCl and the spare vessels
}

// MixParams are the operator-facing knobs for a mix build.
type MixParams struct {
	MixCount      int
	MaxComponents int
	BatchSize     int
	Premix        bool // stir each plasmid source once per batch before drawing

	// SmallPool and FinalPool are the tube-rack wells available as
	// intermediate vessels, consumed front first.
	SmallPool []string
	FinalPool []string
}

// MixPlan is the pure compile product: everything the run will do, decided
// before any liquid moves. Plans are cheap to build and safe to discard.
type MixPlan struct {
	Deck   MixDeck
	Params MixParams

	Mixes    []layout.Mix
	Registry *layout.Registry
	Rescaled []int // indices of mixes the rescaler inflated or deflated
	Vessels  plan.Assignments
	Saline   []plan.Dispatch
}

// CompileMix parses the layout table and runs the full planning pipeline:
// rescale, vessel allocation, NaCl dispatch, and volume feasibility checks.
// Any error here means no physical step would have been possible.
func CompileMix(table layout.Table, deck MixDeck, params MixParams) (*MixPlan, error) {
	if params.BatchSize <= 0 {
		params.BatchSize = DefaultBatchSize
	}
	if params.MaxComponents <= 0 {
		params.MaxComponents = DefaultMaxComponents
	}

	mixes, registry, err := layout.Parse(table, params.MixCount, params.MaxComponents)
	if err != nil {
		return nil, err
	}
	if err := layout.ValidateWells(mixes, labware.Plate96, labware.TubeRack24); err != nil {
		return nil, err
	}

	rescaled := plan.RescaleAll(mixes)

	pool := plan.NewVesselPool(params.SmallPool, params.FinalPool)
	vessels, err := plan.AllocateVessels(mixes, pool)
	if err != nil {
		return nil, err
	}

	saline := plan.BuildSalineDispatch(mixes, vessels, deck.Tubes, deck.Plate)
	for _, d := range saline {
		if _, err := d.Pack(d.TipClass()); err != nil {
			return nil, err
		}
	}

	if err := checkStrokeVolumes(mixes); err != nil {
		return nil, err
	}

	return &MixPlan{
		Deck:     deck,
		Params:   params,
		Mixes:    mixes,
		Registry: registry,
		Rescaled: rescaled,
		Vessels:  vessels,
		Saline:   saline,
	}, nil
}

// checkStrokeVolumes rejects any transfer the largest tip cannot serve in a
// single stroke: a scaled component volume or, for staged mixes, the
// back-transfer of the full original total.
func checkStrokeVolumes(mixes []layout.Mix) error {
	limit := labware.Tip200.Capacity()

	for i := range mixes {
		mix := &mixes[i]
		for _, c := range mix.Plasmids() {
			if scaled := mix.Scaled(c); scaled > limit {
				return &layout.Error{
					Mix: mix.Index,
					Row: mix.Index*layout.BlockRows + layout.VolumeRowOffset,
					Msg: fmt.Sprintf("component %q needs %.1f µL in one stroke, over the %s tip", c.Name, scaled, labware.Tip200),
				}
			}
		}
		if plan.SmallCount(mix) > 0 {
			if total := mix.Total(); total > limit {
				return &layout.Error{
					Mix: mix.Index,
					Row: mix.Index*layout.BlockRows + layout.VolumeRowOffset,
					Msg: fmt.Sprintf("staged total of %.1f µL cannot be carried to %s in one stroke", total, mix.Dest),
				}
			}
		}
	}
	return nil
}

// Batches returns how many commentary batches the plan spans.
func (p *MixPlan) Batches() int {
	if len(p.Mixes) == 0 {
		return 0
	}
	return (len(p.Mixes) + p.Params.BatchSize - 1) / p.Params.BatchSize
}

// MixRun executes a compiled plan. One run owns the tip sequencer and walks
// the plan strictly in order on a single logical thread; completed physical
// steps are never retried or undone.
type MixRun struct {
	plan *MixPlan
	ctrl robot.Controller
	tips *plan.Sequencer
}

// NewMixRun binds a compiled plan to a controller and a tip supply.
func NewMixRun(p *MixPlan, ctrl robot.Controller, tips *plan.Sequencer) *MixRun {
	return &MixRun{plan: p, ctrl: ctrl, tips: tips}
}

// Usage reports per-class tip consumption so far.
func (r *MixRun) Usage() []plan.Usage {
	return r.tips.Report()
}

// Execute performs the whole build: latch the plate, distribute NaCl, then
// construct every mix in table order. The first failed step halts the run
// after a descriptive pause; liquid already dispensed stays where it is.
func (r *MixRun) Execute(ctx context.Context) error {
	r.logEvent("run_started", map[string]interface{}{
		"mixes":   len(r.plan.Mixes),
		"batches": r.plan.Batches(),
		"premix":  r.plan.Params.Premix,
	})

	if err := r.ctrl.CloseLabwareLatch(ctx, r.plan.Deck.Module); err != nil {
		return r.halt(ctx, err)
	}
	r.announceLiquids(ctx)

	if err := r.dispatchSaline(ctx); err != nil {
		return r.halt(ctx, err)
	}

	size := r.plan.Params.BatchSize
	for start := 0; start < len(r.plan.Mixes); start += size {
		end := min(start+size, len(r.plan.Mixes))
		r.ctrl.Comment(ctx, fmt.Sprintf("processing batch: mixes %d to %d", start+1, end))

		premixed := make(map[string]bool)
		for i := start; i < end; i++ {
			mix := &r.plan.Mixes[i]
			if r.plan.Params.Premix {
				if err := r.premixSources(ctx, mix, premixed); err != nil {
					return r.halt(ctx, err)
				}
			}
			if err := r.buildMix(ctx, mix); err != nil {
				return r.halt(ctx, err)
			}
			r.logEvent("mix_built", map[string]interface{}{
				"mix":  mix.Index + 1,
				"dest": mix.Dest,
			})
		}
	}

	if err := r.ctrl.OpenLabwareLatch(ctx, r.plan.Deck.Module); err != nil {
		return r.halt(ctx, err)
	}

	r.ctrl.Comment(ctx, fmt.Sprintf("protocol complete: built %d mixes", len(r.plan.Mixes)))
	r.reportTips(ctx)
	r.logEvent("run_completed", map[string]interface{}{
		"mixes": len(r.plan.Mixes),
	})
	return nil
}

// halt pauses the robot with the cause before surfacing the error, so the
// operator sees why the arm stopped. Cancellation skips the pause: the
// appliance may already be gone.
func (r *MixRun) halt(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		r.ctrl.Pause(ctx, fmt.Sprintf("run halted: %v", err))
	}
	r.logEvent("run_halted", map[string]interface{}{"error": err.Error()})
	return err
}

// announceLiquids writes the deck map to the run log: which liquid sits in
// which tube-rack wells, and the vessel assignments.
func (r *MixRun) announceLiquids(ctx context.Context) {
	for _, name := range r.plan.Registry.Names() {
		wells := r.plan.Registry.WellsOf(name)
		r.ctrl.Comment(ctx, fmt.Sprintf("%s in %s", name, strings.Join(wells, ", ")))
	}
	for i := range r.plan.Mixes {
		mix := &r.plan.Mixes[i]
		assigned, ok := r.plan.Vessels[mix.Dest]
		if !ok {
			continue
		}
		if assigned.Small != "" {
			r.ctrl.Comment(ctx, fmt.Sprintf("staging vessel for %s: %s", mix.Dest, assigned.Small))
		}
		r.ctrl.Comment(ctx, fmt.Sprintf("final vessel for %s: %s", mix.Dest, assigned.Final))
	}
}

// dispatchSaline distributes NaCl one source at a time: a single tip per
// source, one aspirate per packed group with the safety buffer on top, one
// dispense per destination, and a blow-out back into the source tube.
func (r *MixRun) dispatchSaline(ctx context.Context) error {
	for _, d := range r.plan.Saline {
		class := d.TipClass()
		groups, err := d.Pack(class)
		if err != nil {
			return err
		}

		if err := r.tips.PickUp(ctx, r.ctrl, class); err != nil {
			return err
		}
		mount := r.tips.Mount(class)
		source := labware.At(r.plan.Deck.Tubes, d.Source)

		for _, group := range groups {
			draw := plan.GroupTotal(group) + plan.SalineBuffer
			if err := r.ctrl.Aspirate(ctx, mount, draw, source); err != nil {
				return err
			}
			for _, dest := range group {
				if err := r.ctrl.Dispense(ctx, mount, dest.Volume, dest.Dest); err != nil {
					return err
				}
			}
			top := source.Top(0)
			if err := r.ctrl.BlowOut(ctx, mount, &top); err != nil {
				return err
			}
		}

		if err := r.tips.Drop(ctx, r.ctrl); err != nil {
			return err
		}
		r.ctrl.Comment(ctx, fmt.Sprintf("distributed %.1f µL of %s from %s across %d wells",
			d.Total, layout.SalineName, d.Source, len(d.Draws)))
	}
	return nil
}

// premixSources stirs each of the mix's plasmid sources that has not been
// premixed yet in this batch: deep aspirate near the bottom, release higher
// up, six cycles with a 200-class tip.
func (r *MixRun) premixSources(ctx context.Context, mix *layout.Mix, premixed map[string]bool) error {
	for _, c := range mix.Plasmids() {
		if c.Volume <= 0 || premixed[c.Source] {
			continue
		}

		if err := r.tips.PickUp(ctx, r.ctrl, labware.Tip200); err != nil {
			return err
		}
		mount := r.tips.Mount(labware.Tip200)
		src := labware.At(r.plan.Deck.Tubes, c.Source)

		r.ctrl.Comment(ctx, fmt.Sprintf("premixing %s in %s (%d × %.0f µL)",
			r.liquidAt(c.Source), c.Source, premixCycles, premixVolume))
		for cycle := 0; cycle < premixCycles; cycle++ {
			if err := r.ctrl.Aspirate(ctx, mount, premixVolume, src.Bottom(1)); err != nil {
				return err
			}
			if err := r.ctrl.Dispense(ctx, mount, premixVolume, src.Bottom(10)); err != nil {
				return err
			}
		}
		top := src.Top(-2)
		if err := r.ctrl.BlowOut(ctx, mount, &top); err != nil {
			return err
		}
		if err := r.tips.Drop(ctx, r.ctrl); err != nil {
			return err
		}
		premixed[c.Source] = true
	}
	return nil
}

// buildMix constructs one mix. Components split into sub-µL ones, which go
// through the intermediate vessels, and normal ones, which go wherever the
// mix is being assembled. NaCl never appears here: its liquid already
// arrived via the dispatch.
func (r *MixRun) buildMix(ctx context.Context, mix *layout.Mix) error {
	r.ctrl.Comment(ctx, fmt.Sprintf("building mix %d in %s", mix.Index+1, mix.Dest))

	var smallVolumes, normalVolumes []float64
	var smallSources, normalSources []string
	for _, c := range mix.Plasmids() {
		scaled := mix.Scaled(c)
		if plan.IsSmall(c.Volume) {
			smallVolumes = append(smallVolumes, scaled*stagingScale)
			smallSources = append(smallSources, c.Source)
		} else {
			normalVolumes = append(normalVolumes, scaled)
			normalSources = append(normalSources, c.Source)
		}
	}

	if len(smallVolumes) == 0 {
		return r.directTransfers(ctx, mix, normalVolumes, normalSources)
	}
	return r.stagedTransfers(ctx, mix, smallVolumes, smallSources, normalVolumes, normalSources)
}

// directTransfers moves each normal component straight to the destination
// well, fresh tip per component.
func (r *MixRun) directTransfers(ctx context.Context, mix *layout.Mix, volumes []float64, sources []string) error {
	dest := labware.At(r.plan.Deck.Plate, mix.Dest)
	for i, vol := range volumes {
		if vol <= 0 {
			continue
		}
		if err := r.transfer(ctx, vol, labware.At(r.plan.Deck.Tubes, sources[i]), dest, dest.Top(-2)); err != nil {
			return err
		}
	}
	return nil
}

// stagedTransfers assembles a mix that has sub-µL components. Two or more
// smalls are pooled at ×10 in the staging vessel and carried to the final
// vessel at original scale; a single small goes straight to the final
// vessel. Normal components join it there, and one back-transfer of the
// operator-intended total lands the mix in its destination well.
func (r *MixRun) stagedTransfers(ctx context.Context, mix *layout.Mix, smallVolumes []float64, smallSources []string, normalVolumes []float64, normalSources []string) error {
	assigned := r.plan.Vessels[mix.Dest]
	final := labware.At(r.plan.Deck.Tubes, assigned.Final)

	if len(smallVolumes) > 1 {
		small := labware.At(r.plan.Deck.Tubes, assigned.Small)
		r.ctrl.Comment(ctx, fmt.Sprintf("pooling %d sub-µL aliquots at ×%d in %s",
			len(smallVolumes), stagingScale, assigned.Small))

		for i, vol := range smallVolumes {
			if err := r.transferInPlace(ctx, vol, labware.At(r.plan.Deck.Tubes, smallSources[i]), small); err != nil {
				return err
			}
		}

		// Carry the pooled stage forward at original scale, stirring it
		// first so the aliquots actually combine.
		staged := sum(smallVolumes)
		carry := staged / stagingScale
		r.ctrl.Comment(ctx, fmt.Sprintf("carrying %.2f µL from %s to %s", carry, assigned.Small, assigned.Final))

		class := classFor(carry)
		if err := r.tips.PickUp(ctx, r.ctrl, class); err != nil {
			return err
		}
		mount := r.tips.Mount(class)
		if class == labware.Tip50 {
			if err := r.ctrl.Mix(ctx, mount, 3, 0.8*staged, small.Bottom(0.1)); err != nil {
				return err
			}
		}
		if err := r.ctrl.Aspirate(ctx, mount, carry, small.Bottom(0.1)); err != nil {
			return err
		}
		if err := r.ctrl.Dispense(ctx, mount, carry, final); err != nil {
			return err
		}
		if err := r.ctrl.BlowOut(ctx, mount, nil); err != nil {
			return err
		}
		if err := r.tips.Drop(ctx, r.ctrl); err != nil {
			return err
		}
	} else {
		vol := smallVolumes[0] / stagingScale
		r.ctrl.Comment(ctx, fmt.Sprintf("single sub-µL component: %.2f µL straight to %s", vol, assigned.Final))
		if vol > 0 {
			if err := r.transferInPlace(ctx, vol, labware.At(r.plan.Deck.Tubes, smallSources[0]), final); err != nil {
				return err
			}
		}
	}

	for i, vol := range normalVolumes {
		if vol <= 0 {
			continue
		}
		if err := r.transfer(ctx, vol, labware.At(r.plan.Deck.Tubes, normalSources[i]), final, final.Top(-2)); err != nil {
			return err
		}
	}

	// The final vessel holds the scaled mix; the destination receives the
	// original intended quantity, so any rescaling surplus stays behind.
	total := mix.Total()
	r.ctrl.Comment(ctx, fmt.Sprintf("back-transfer: %.2f µL from %s to %s", total, assigned.Final, mix.Dest))

	class := classFor(total)
	if err := r.tips.PickUp(ctx, r.ctrl, class); err != nil {
		return err
	}
	mount := r.tips.Mount(class)
	if err := r.ctrl.Mix(ctx, mount, 3, min(0.8*total, labware.Tip50.Capacity()), final.Bottom(1)); err != nil {
		return err
	}
	if err := r.ctrl.Aspirate(ctx, mount, total, final.Bottom(1)); err != nil {
		return err
	}
	dest := labware.At(r.plan.Deck.Plate, mix.Dest)
	if err := r.ctrl.Dispense(ctx, mount, total, dest.Bottom(1)); err != nil {
		return err
	}
	top := dest.Top(-2)
	if err := r.ctrl.BlowOut(ctx, mount, &top); err != nil {
		return err
	}
	if err := r.tips.Drop(ctx, r.ctrl); err != nil {
		return err
	}

	r.ctrl.Comment(ctx, fmt.Sprintf("mix %d in %s complete", mix.Index+1, mix.Dest))
	return nil
}

// transfer moves one volume with a fresh tip and blows out at the given
// location before the tip is dropped.
func (r *MixRun) transfer(ctx context.Context, volume float64, from, to, blowOutAt labware.Location) error {
	class := classFor(volume)
	if err := r.tips.PickUp(ctx, r.ctrl, class); err != nil {
		return err
	}
	mount := r.tips.Mount(class)
	if err := r.ctrl.Aspirate(ctx, mount, volume, from); err != nil {
		return err
	}
	if err := r.ctrl.Dispense(ctx, mount, volume, to); err != nil {
		return err
	}
	if err := r.ctrl.BlowOut(ctx, mount, &blowOutAt); err != nil {
		return err
	}
	return r.tips.Drop(ctx, r.ctrl)
}

// transferInPlace is transfer with the blow-out issued at the dispense
// position instead of a named location.
func (r *MixRun) transferInPlace(ctx context.Context, volume float64, from, to labware.Location) error {
	class := classFor(volume)
	if err := r.tips.PickUp(ctx, r.ctrl, class); err != nil {
		return err
	}
	mount := r.tips.Mount(class)
	if err := r.ctrl.Aspirate(ctx, mount, volume, from); err != nil {
		return err
	}
	if err := r.ctrl.Dispense(ctx, mount, volume, to); err != nil {
		return err
	}
	if err := r.ctrl.BlowOut(ctx, mount, nil); err != nil {
		return err
	}
	return r.tips.Drop(ctx, r.ctrl)
}

// reportTips writes the per-class usage summary into the run log.
func (r *MixRun) reportTips(ctx context.Context) {
	for _, u := range r.tips.Report() {
		r.ctrl.Comment(ctx, fmt.Sprintf("%s tips used: %d (%d left, %d rack swap(s))",
			u.Class, u.Used, u.Remaining, u.Swaps))
	}
}

// liquidAt resolves a tube-rack well to its registered liquid name.
func (r *MixRun) liquidAt(well string) string {
	if name, ok := r.plan.Registry.NameAt(well); ok {
		return name
	}
	return "unknown liquid"
}

// classFor picks the smallest tip class that can take the volume in one
// stroke. Volumes over 50 µL go to the high-volume instrument.
func classFor(volume float64) labware.TipClass {
	if volume <= labware.Tip50.Capacity() {
		return labware.Tip50
	}
	return labware.Tip200
}

func sum(volumes []float64) float64 {
	var total float64
	for _, v := range volumes {
		total += v
	}
	return total
}

// logEvent writes a structured run event in JSON format, one line per event.
func logEvent(component, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = component
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Protocol] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

func (r *MixRun) logEvent(eventType string, data map[string]interface{}) {
	logEvent("dnamix", eventType, data)
}
