package runlog

import (
	"fmt"

	"github.com/google/uuid"
)

// Protocol identifies which protocol a run executed.
type Protocol string

const (
	// ProtocolMix is the DNA mix construction protocol.
	ProtocolMix Protocol = "mix"

	// ProtocolAliquot is the reagent distribution and aliquoting protocol.
	ProtocolAliquot Protocol = "aliquot"
)

// RunStatus defines the lifecycle state of a recorded run.
type RunStatus string

const (
	// RunStatusRunning indicates the protocol is still executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates the protocol finished every step.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates the protocol halted before completion.
	RunStatusFailed RunStatus = "failed"
)

// RunRecord represents one protocol execution on a workcell. The record is
// written when the run starts and updated in place as it progresses; the
// step-by-step history lives in the per-run step list, not here.
type RunRecord struct {
	ID          string    `json:"id"`       // UUID - unique identifier for this run
	Workcell    string    `json:"workcell"` // bench the run executed on
	Protocol    Protocol  `json:"protocol"`
	Name        string    `json:"name,omitempty"` // operator-supplied label
	Status      RunStatus `json:"status"`
	Mixes       int       `json:"mixes"` // mixes the plan covers
	StartedAtMs int64     `json:"started_at_ms"`
	EndedAtMs   int64     `json:"ended_at_ms,omitempty"`
	Error       string    `json:"error,omitempty"` // halt cause when status=failed
	Steps       int       `json:"steps"`           // total steps, filled in at end of run

	// TipsUsed maps a tip class key ("tips50") to the number of tips that
	// class consumed. Filled in when the run ends.
	TipsUsed map[string]int `json:"tips_used,omitempty"`
}

// StepEvent is one recorded controller operation within a run. Events carry
// a rendered text form so observers need no protocol knowledge to display
// them.
type StepEvent struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"` // 1-based position within the run
	AtMs  int64  `json:"at_ms"`
	Op    string `json:"op"`   // operation name, e.g. "aspirate"
	Text  string `json:"text"` // human-readable rendering of the step
}

// EventKind distinguishes what a journal event carries.
type EventKind string

const (
	// EventKindLifecycle marks run creation and status transitions.
	EventKindLifecycle EventKind = "lifecycle"

	// EventKindStep marks a single recorded controller step.
	EventKindStep EventKind = "step"
)

// RunEvent is the envelope published on the run_events channel: either a
// lifecycle change carrying the full run record, or a single step.
type RunEvent struct {
	Kind EventKind  `json:"kind"`
	Run  *RunRecord `json:"run,omitempty"`
	Step *StepEvent `json:"step,omitempty"`
}

// Validate checks if the RunRecord has valid field values.
func (r *RunRecord) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid run ID: not a valid UUID")
	}

	if r.Workcell == "" {
		return fmt.Errorf("workcell cannot be empty")
	}

	if err := r.Protocol.Validate(); err != nil {
		return fmt.Errorf("invalid protocol: %w", err)
	}

	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if r.StartedAtMs <= 0 {
		return fmt.Errorf("started_at_ms must be set")
	}

	return nil
}

// Validate checks if the Protocol is a valid enum value.
func (p Protocol) Validate() error {
	switch p {
	case ProtocolMix, ProtocolAliquot:
		return nil
	default:
		return fmt.Errorf("unknown protocol: %q", p)
	}
}

// Validate checks if the RunStatus is a valid enum value.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown run status: %q", s)
	}
}

// Validate checks if the StepEvent has valid field values.
func (e *StepEvent) Validate() error {
	if !isValidUUID(e.RunID) {
		return fmt.Errorf("invalid run ID: not a valid UUID")
	}

	if e.Seq < 1 {
		return fmt.Errorf("invalid seq: must be >= 1, got %d", e.Seq)
	}

	if e.Op == "" {
		return fmt.Errorf("step op cannot be empty")
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
