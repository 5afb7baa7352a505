package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/robot"
)

// TipHandler is the slice of the robot interface the sequencer drives:
// picking and dropping tips, and gripper moves for the rack swap.
type TipHandler interface {
	PickUpTip(ctx context.Context, mount robot.Mount, tip labware.Location) error
	DropTip(ctx context.Context, mount robot.Mount) error
	MoveLabware(ctx context.Context, labwareName, slot string) error
	Comment(ctx context.Context, message string) error
}

// RackConfig describes the tip supply for one capacity class.
type RackConfig struct {
	Class    labware.TipClass
	Mount    robot.Mount
	Labware  string // deck name of the working rack
	StartTip string // first tip to consume, row-major from here

	// Reserve configures the optional second rack swapped in when the
	// working rack runs dry. Only the 50 µL class carries one on this deck.
	Reserve    string // deck name of the reserve rack, "" = none
	ActiveSlot string // slot the working rack occupies
	HoldSlot   string // where the exhausted rack is parked during the swap
}

// tipQueue tracks one class's remaining tips and counters.
type tipQueue struct {
	cfg     RackConfig
	active  string   // labware currently serving pickups
	reserve string   // emptied to "" once the swap has happened
	wells   []string // remaining tip wells on the active rack, row-major
	used    int
	dropped int
	swaps   int
}

// Sequencer hands out tips across the configured capacity classes,
// swapping in reserve racks when a class with one runs dry. It also tracks
// which class is currently held so the strict pickup/drop ordering of a
// single-arm run is enforced in software before the robot can object.
type Sequencer struct {
	queues map[labware.TipClass]*tipQueue
	held   labware.TipClass // 0 = no tip held
}

// NewSequencer validates the rack configurations and builds the queues.
// An unknown starting tip is a configuration error, caught before the run.
func NewSequencer(racks ...RackConfig) (*Sequencer, error) {
	s := &Sequencer{queues: make(map[labware.TipClass]*tipQueue)}

	for _, cfg := range racks {
		if _, dup := s.queues[cfg.Class]; dup {
			return nil, fmt.Errorf("tip class %s configured twice", cfg.Class)
		}
		start := cfg.StartTip
		if start == "" {
			start = "A1"
		}
		wells, err := labware.TipRack96.WellsFrom(start)
		if err != nil {
			return nil, fmt.Errorf("rack %s: %w", cfg.Labware, err)
		}
		s.queues[cfg.Class] = &tipQueue{
			cfg:     cfg,
			active:  cfg.Labware,
			reserve: cfg.Reserve,
			wells:   wells,
		}
	}

	return s, nil
}

// Mount returns the instrument mount serving a class.
func (s *Sequencer) Mount(class labware.TipClass) robot.Mount {
	if q := s.queues[class]; q != nil {
		return q.cfg.Mount
	}
	return ""
}

// Held returns the class of the currently held tip, 0 when none.
func (s *Sequencer) Held() labware.TipClass {
	return s.held
}

// PickUp acquires the next tip of the class: swap in the reserve rack if
// the queue is dry and one exists, pop the head, and pick it up.
func (s *Sequencer) PickUp(ctx context.Context, ctrl TipHandler, class labware.TipClass) error {
	if s.held != 0 {
		return fmt.Errorf("pipetting bug: picking up a %s tip while still holding a %s tip", class, s.held)
	}
	q := s.queues[class]
	if q == nil {
		return fmt.Errorf("no tip rack configured for the %s class", class)
	}

	if len(q.wells) == 0 {
		if q.reserve == "" {
			return &ExhaustedError{
				Resource: fmt.Sprintf("%s tips", class),
				Detail:   fmt.Sprintf("rack %s is empty and no reserve rack remains", q.active),
			}
		}
		if err := q.swap(ctx, ctrl); err != nil {
			return err
		}
	}

	tip := labware.At(q.active, q.wells[0])
	if err := ctrl.PickUpTip(ctx, q.cfg.Mount, tip); err != nil {
		return fmt.Errorf("failed to pick up a %s tip at %s: %w", class, tip, err)
	}
	q.wells = q.wells[1:]
	q.used++
	s.held = class
	return nil
}

// Drop discards the held tip.
func (s *Sequencer) Drop(ctx context.Context, ctrl TipHandler) error {
	if s.held == 0 {
		return fmt.Errorf("pipetting bug: dropping a tip while none is held")
	}
	q := s.queues[s.held]
	if err := ctrl.DropTip(ctx, q.cfg.Mount); err != nil {
		return fmt.Errorf("failed to drop the %s tip: %w", s.held, err)
	}
	q.dropped++
	s.held = 0
	return nil
}

// swap parks the exhausted rack on the holding slot, moves the reserve into
// the working slot, and rebuilds the queue from a full rack. The old rack
// is spent, so the reserve is consumed: a second exhaustion of this class
// is fatal.
func (q *tipQueue) swap(ctx context.Context, ctrl TipHandler) error {
	ctrl.Comment(ctx, fmt.Sprintf("====== swapping in the reserve %s tip rack ======", q.cfg.Class))

	if err := ctrl.MoveLabware(ctx, q.active, q.cfg.HoldSlot); err != nil {
		return fmt.Errorf("failed to park exhausted rack %s: %w", q.active, err)
	}
	if err := ctrl.MoveLabware(ctx, q.reserve, q.cfg.ActiveSlot); err != nil {
		return fmt.Errorf("failed to move reserve rack %s into service: %w", q.reserve, err)
	}

	q.active, q.reserve = q.reserve, ""
	q.wells = labware.TipRack96.Wells()
	q.swaps++
	return nil
}

// Usage summarizes one class's consumption for the end-of-run report.
type Usage struct {
	Class     labware.TipClass
	Used      int
	Dropped   int
	Swaps     int
	Remaining int
}

// Report returns per-class usage, smallest class first.
func (s *Sequencer) Report() []Usage {
	report := make([]Usage, 0, len(s.queues))
	for class, q := range s.queues {
		report = append(report, Usage{
			Class:     class,
			Used:      q.used,
			Dropped:   q.dropped,
			Swaps:     q.swaps,
			Remaining: len(q.wells),
		})
	}
	sort.Slice(report, func(i, j int) bool { return report[i].Class < report[j].Class })
	return report
}

// Used returns how many tips of a class have been picked up.
func (s *Sequencer) Used(class labware.TipClass) int {
	if q := s.queues[class]; q != nil {
		return q.used
	}
	return 0
}
