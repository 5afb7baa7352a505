// Package robot defines the capability interface the protocol drivers use
// to move liquid, and its two implementations: a Gateway speaking HTTP to
// the Flex appliance and a recording Simulator for planning and tests.
//
// The planning packages never talk to hardware directly; everything physical
// goes through a Controller. A failed operation is terminal for the run:
// partially dispensed liquid cannot be undone, so there is no retry here.
package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/flexprep/internal/labware"
)

// Mount identifies which instrument carries out an operation.
type Mount string

const (
	MountLeft  Mount = "left"
	MountRight Mount = "right"
)

// Controller is the capability surface of the robot. Implementations must
// execute each call fully before returning; callers rely on strict
// sequential ordering (a single arm is the shared resource).
type Controller interface {
	// PickUpTip picks a fresh tip from the given rack position.
	PickUpTip(ctx context.Context, mount Mount, tip labware.Location) error

	// DropTip discards the held tip into the trash.
	DropTip(ctx context.Context, mount Mount) error

	// Aspirate draws volume µL from a location into the held tip.
	Aspirate(ctx context.Context, mount Mount, volume float64, from labware.Location) error

	// Dispense pushes volume µL from the held tip into a location.
	Dispense(ctx context.Context, mount Mount, volume float64, to labware.Location) error

	// Mix runs aspirate/dispense cycles of volume µL in place.
	Mix(ctx context.Context, mount Mount, repetitions int, volume float64, at labware.Location) error

	// BlowOut purges residual liquid from the tip. A nil location blows out
	// at the current position.
	BlowOut(ctx context.Context, mount Mount, at *labware.Location) error

	// AirGap draws volume µL of air into the tip to hold liquid in place
	// while the arm travels.
	AirGap(ctx context.Context, mount Mount, volume float64) error

	// SetFlowRate adjusts the instrument's aspirate/dispense speeds in µL/s.
	SetFlowRate(ctx context.Context, mount Mount, aspirate, dispense float64) error

	// MoveLabware relocates a deck item to another slot using the gripper.
	MoveLabware(ctx context.Context, labwareName, slot string) error

	// OpenLabwareLatch releases the named module's labware clamp.
	OpenLabwareLatch(ctx context.Context, module string) error

	// CloseLabwareLatch clamps the labware on the named module.
	CloseLabwareLatch(ctx context.Context, module string) error

	// Pause stops the run and shows a message until the operator resumes.
	Pause(ctx context.Context, message string) error

	// Comment writes a line to the robot's run log.
	Comment(ctx context.Context, message string) error

	// Delay suspends execution for the given duration.
	Delay(ctx context.Context, d time.Duration) error
}

// Op names a controller operation in step records and journal events.
type Op string

const (
	OpPickUpTip   Op = "pick_up_tip"
	OpDropTip     Op = "drop_tip"
	OpAspirate    Op = "aspirate"
	OpDispense    Op = "dispense"
	OpMix         Op = "mix"
	OpBlowOut     Op = "blow_out"
	OpAirGap      Op = "air_gap"
	OpFlowRate    Op = "set_flow_rate"
	OpMoveLabware Op = "move_labware"
	OpOpenLatch   Op = "open_latch"
	OpCloseLatch  Op = "close_latch"
	OpPause       Op = "pause"
	OpComment     Op = "comment"
	OpDelay       Op = "delay"
)

// Step is one issued controller operation. The simulator records steps for
// inspection and the recorder forwards them to run journals.
type Step struct {
	Op           Op                `json:"op"`
	Mount        Mount             `json:"mount,omitempty"`
	Volume       float64           `json:"volume,omitempty"`
	Repetitions  int               `json:"repetitions,omitempty"`
	Location     *labware.Location `json:"location,omitempty"`
	Labware      string            `json:"labware,omitempty"` // move/latch target
	Slot         string            `json:"slot,omitempty"`    // move destination
	Message      string            `json:"message,omitempty"` // pause/comment text
	Duration     time.Duration     `json:"duration,omitempty"`
	AspirateRate float64           `json:"aspirate_rate,omitempty"`
	DispenseRate float64           `json:"dispense_rate,omitempty"`
}

// String renders the step for plan output and journals.
func (s Step) String() string {
	switch s.Op {
	case OpPickUpTip:
		return fmt.Sprintf("pick up tip at %s (%s)", s.Location, s.Mount)
	case OpDropTip:
		return fmt.Sprintf("drop tip (%s)", s.Mount)
	case OpAspirate:
		return fmt.Sprintf("aspirate %.1f µL from %s (%s)", s.Volume, s.Location, s.Mount)
	case OpDispense:
		return fmt.Sprintf("dispense %.1f µL to %s (%s)", s.Volume, s.Location, s.Mount)
	case OpMix:
		return fmt.Sprintf("mix %d × %.1f µL at %s (%s)", s.Repetitions, s.Volume, s.Location, s.Mount)
	case OpBlowOut:
		if s.Location != nil {
			return fmt.Sprintf("blow out at %s (%s)", s.Location, s.Mount)
		}
		return fmt.Sprintf("blow out in place (%s)", s.Mount)
	case OpAirGap:
		return fmt.Sprintf("air gap %.1f µL (%s)", s.Volume, s.Mount)
	case OpFlowRate:
		return fmt.Sprintf("set flow rates to %.0f/%.0f µL/s (%s)", s.AspirateRate, s.DispenseRate, s.Mount)
	case OpMoveLabware:
		return fmt.Sprintf("move %s to slot %s", s.Labware, s.Slot)
	case OpOpenLatch:
		return fmt.Sprintf("open latch on %s", s.Labware)
	case OpCloseLatch:
		return fmt.Sprintf("close latch on %s", s.Labware)
	case OpPause:
		return fmt.Sprintf("pause: %s", s.Message)
	case OpComment:
		return fmt.Sprintf("comment: %s", s.Message)
	case OpDelay:
		return fmt.Sprintf("delay %s", s.Duration)
	}
	return string(s.Op)
}

// HardwareError is a failure reported by the robot for a specific operation.
// It is terminal: the driver pauses with a descriptive message and halts.
type HardwareError struct {
	Op      Op
	Status  int    // HTTP status from the appliance, 0 if transport-level
	Message string // robot-reported cause
}

func (e *HardwareError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("robot rejected %s (HTTP %d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("robot failed during %s: %s", e.Op, e.Message)
}
