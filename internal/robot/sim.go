package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/flexprep/internal/labware"
)

var _ Controller = (*Simulator)(nil)

// Simulator is a Controller that records every step instead of moving an
// arm. It also enforces the tip discipline the physical robot would: no
// liquid operation without a tip, no double pickup, no dispensing more than
// the tip holds, and no aspirating past the tip's capacity when the rack's
// class is registered.
//
// An air gap occupies tip capacity but is not liquid; it is released by the
// next dispense or blow-out.
type Simulator struct {
	steps   []Step
	classes map[string]labware.TipClass // tip-rack labware name → class
	tips    map[Mount]*simTip
}

type simTip struct {
	class    labware.TipClass // 0 when the rack was not registered
	liquid   float64
	air      float64
	pickedAt labware.Location
}

// NewSimulator returns an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		classes: make(map[string]labware.TipClass),
		tips:    make(map[Mount]*simTip),
	}
}

// RegisterTipRack associates a deck item name with a tip class so the
// simulator can enforce capacity limits on tips picked from it.
func (s *Simulator) RegisterTipRack(labwareName string, class labware.TipClass) {
	s.classes[labwareName] = class
}

// Steps returns everything recorded so far.
func (s *Simulator) Steps() []Step {
	return s.steps
}

// StepsOf filters the recorded steps by operation.
func (s *Simulator) StepsOf(op Op) []Step {
	var out []Step
	for _, st := range s.steps {
		if st.Op == op {
			out = append(out, st)
		}
	}
	return out
}

func (s *Simulator) record(step Step) {
	s.steps = append(s.steps, step)
}

func (s *Simulator) tip(mount Mount) (*simTip, error) {
	t := s.tips[mount]
	if t == nil {
		return nil, fmt.Errorf("no tip on the %s mount", mount)
	}
	return t, nil
}

func (s *Simulator) PickUpTip(ctx context.Context, mount Mount, tip labware.Location) error {
	if t := s.tips[mount]; t != nil {
		return fmt.Errorf("the %s mount already holds a tip picked at %s", mount, t.pickedAt)
	}
	s.tips[mount] = &simTip{class: s.classes[tip.Labware], pickedAt: tip}
	s.record(Step{Op: OpPickUpTip, Mount: mount, Location: &tip})
	return nil
}

func (s *Simulator) DropTip(ctx context.Context, mount Mount) error {
	if s.tips[mount] == nil {
		return fmt.Errorf("dropping a tip the %s mount does not hold", mount)
	}
	delete(s.tips, mount)
	s.record(Step{Op: OpDropTip, Mount: mount})
	return nil
}

func (s *Simulator) Aspirate(ctx context.Context, mount Mount, volume float64, from labware.Location) error {
	t, err := s.tip(mount)
	if err != nil {
		return fmt.Errorf("cannot aspirate: %w", err)
	}
	if volume <= 0 {
		return fmt.Errorf("cannot aspirate %.2f µL from %s: volume must be positive", volume, from)
	}
	if t.class != 0 && t.liquid+t.air+volume > t.class.Capacity() {
		return fmt.Errorf("aspirating %.1f µL from %s would overfill the %s tip (%.1f µL already held)",
			volume, from, t.class, t.liquid+t.air)
	}
	t.liquid += volume
	s.record(Step{Op: OpAspirate, Mount: mount, Volume: volume, Location: &from})
	return nil
}

func (s *Simulator) Dispense(ctx context.Context, mount Mount, volume float64, to labware.Location) error {
	t, err := s.tip(mount)
	if err != nil {
		return fmt.Errorf("cannot dispense: %w", err)
	}
	t.air = 0
	if volume > t.liquid+1e-9 {
		return fmt.Errorf("dispensing %.1f µL to %s with only %.1f µL in the tip", volume, to, t.liquid)
	}
	t.liquid -= volume
	s.record(Step{Op: OpDispense, Mount: mount, Volume: volume, Location: &to})
	return nil
}

func (s *Simulator) Mix(ctx context.Context, mount Mount, repetitions int, volume float64, at labware.Location) error {
	t, err := s.tip(mount)
	if err != nil {
		return fmt.Errorf("cannot mix: %w", err)
	}
	if t.class != 0 && volume > t.class.Capacity() {
		return fmt.Errorf("mixing %.1f µL at %s exceeds the %s tip", volume, at, t.class)
	}
	s.record(Step{Op: OpMix, Mount: mount, Repetitions: repetitions, Volume: volume, Location: &at})
	return nil
}

func (s *Simulator) BlowOut(ctx context.Context, mount Mount, at *labware.Location) error {
	t, err := s.tip(mount)
	if err != nil {
		return fmt.Errorf("cannot blow out: %w", err)
	}
	t.liquid = 0
	t.air = 0
	s.record(Step{Op: OpBlowOut, Mount: mount, Location: at})
	return nil
}

func (s *Simulator) AirGap(ctx context.Context, mount Mount, volume float64) error {
	t, err := s.tip(mount)
	if err != nil {
		return fmt.Errorf("cannot air gap: %w", err)
	}
	if t.class != 0 && t.liquid+t.air+volume > t.class.Capacity() {
		return fmt.Errorf("a %.1f µL air gap would overfill the %s tip (%.1f µL held)", volume, t.class, t.liquid+t.air)
	}
	t.air += volume
	s.record(Step{Op: OpAirGap, Mount: mount, Volume: volume})
	return nil
}

func (s *Simulator) SetFlowRate(ctx context.Context, mount Mount, aspirate, dispense float64) error {
	s.record(Step{Op: OpFlowRate, Mount: mount, AspirateRate: aspirate, DispenseRate: dispense})
	return nil
}

func (s *Simulator) MoveLabware(ctx context.Context, labwareName, slot string) error {
	s.record(Step{Op: OpMoveLabware, Labware: labwareName, Slot: slot})
	return nil
}

func (s *Simulator) OpenLabwareLatch(ctx context.Context, module string) error {
	s.record(Step{Op: OpOpenLatch, Labware: module})
	return nil
}

func (s *Simulator) CloseLabwareLatch(ctx context.Context, module string) error {
	s.record(Step{Op: OpCloseLatch, Labware: module})
	return nil
}

func (s *Simulator) Pause(ctx context.Context, message string) error {
	s.record(Step{Op: OpPause, Message: message})
	return nil
}

func (s *Simulator) Comment(ctx context.Context, message string) error {
	s.record(Step{Op: OpComment, Message: message})
	return nil
}

func (s *Simulator) Delay(ctx context.Context, d time.Duration) error {
	s.record(Step{Op: OpDelay, Duration: d})
	return nil
}
