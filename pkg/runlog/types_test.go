package runlog

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestRunRecordValidate_Valid tests that valid run records pass validation
func TestRunRecordValidate_Valid(t *testing.T) {
	record := &RunRecord{
		ID:          uuid.New().String(),
		Workcell:    "bench-a",
		Protocol:    ProtocolMix,
		Name:        "morning-batch",
		Status:      RunStatusRunning,
		Mixes:       12,
		StartedAtMs: time.Now().UnixMilli(),
		TipsUsed:    map[string]int{"tips50": 3},
	}

	if err := record.Validate(); err != nil {
		t.Errorf("valid run record failed validation: %v", err)
	}
}

// TestRunRecordValidate_NoName tests that the name field is optional
func TestRunRecordValidate_NoName(t *testing.T) {
	record := &RunRecord{
		ID:          uuid.New().String(),
		Workcell:    "bench-a",
		Protocol:    ProtocolAliquot,
		Status:      RunStatusRunning,
		Mixes:       12,
		StartedAtMs: time.Now().UnixMilli(),
	}

	if err := record.Validate(); err != nil {
		t.Errorf("run record without a name failed validation: %v", err)
	}
}

// TestRunRecordValidate_InvalidID tests that a non-UUID run ID fails validation
func TestRunRecordValidate_InvalidID(t *testing.T) {
	record := &RunRecord{
		ID:          "not-a-uuid",
		Workcell:    "bench-a",
		Protocol:    ProtocolMix,
		Status:      RunStatusRunning,
		StartedAtMs: time.Now().UnixMilli(),
	}

	if err := record.Validate(); err == nil {
		t.Error("expected validation to fail for invalid ID, but it passed")
	}
}

// TestRunRecordValidate_EmptyWorkcell tests that an empty workcell fails validation
func TestRunRecordValidate_EmptyWorkcell(t *testing.T) {
	record := &RunRecord{
		ID:          uuid.New().String(),
		Workcell:    "",
		Protocol:    ProtocolMix,
		Status:      RunStatusRunning,
		StartedAtMs: time.Now().UnixMilli(),
	}

	if err := record.Validate(); err == nil {
		t.Error("expected validation to fail for empty workcell, but it passed")
	}
}

// TestRunRecordValidate_InvalidProtocol tests that an unknown protocol fails validation
func TestRunRecordValidate_InvalidProtocol(t *testing.T) {
	record := &RunRecord{
		ID:          uuid.New().String(),
		Workcell:    "bench-a",
		Protocol:    "centrifuge",
		Status:      RunStatusRunning,
		StartedAtMs: time.Now().UnixMilli(),
	}

	if err := record.Validate(); err == nil {
		t.Error("expected validation to fail for unknown protocol, but it passed")
	}
}

// TestRunRecordValidate_InvalidStatus tests that an unknown status fails validation
func TestRunRecordValidate_InvalidStatus(t *testing.T) {
	record := &RunRecord{
		ID:          uuid.New().String(),
		Workcell:    "bench-a",
		Protocol:    ProtocolMix,
		Status:      "paused",
		StartedAtMs: time.Now().UnixMilli(),
	}

	if err := record.Validate(); err == nil {
		t.Error("expected validation to fail for unknown status, but it passed")
	}
}

// TestRunRecordValidate_MissingStartTime tests that a zero start time fails validation
func TestRunRecordValidate_MissingStartTime(t *testing.T) {
	record := &RunRecord{
		ID:       uuid.New().String(),
		Workcell: "bench-a",
		Protocol: ProtocolMix,
		Status:   RunStatusRunning,
	}

	if err := record.Validate(); err == nil {
		t.Error("expected validation to fail for missing start time, but it passed")
	}
}

// TestProtocolValidate_AllValid tests all valid protocols
func TestProtocolValidate_AllValid(t *testing.T) {
	validProtocols := []Protocol{
		ProtocolMix,
		ProtocolAliquot,
	}

	for _, p := range validProtocols {
		t.Run(string(p), func(t *testing.T) {
			if err := p.Validate(); err != nil {
				t.Errorf("valid protocol %q failed validation: %v", p, err)
			}
		})
	}
}

// TestProtocolValidate_Invalid tests an unknown protocol
func TestProtocolValidate_Invalid(t *testing.T) {
	invalidProtocol := Protocol("thermocycle")
	if err := invalidProtocol.Validate(); err == nil {
		t.Error("expected validation to fail for unknown protocol, but it passed")
	}
}

// TestRunStatusValidate_AllValid tests all valid run statuses
func TestRunStatusValidate_AllValid(t *testing.T) {
	validStatuses := []RunStatus{
		RunStatusRunning,
		RunStatusCompleted,
		RunStatusFailed,
	}

	for _, status := range validStatuses {
		t.Run(string(status), func(t *testing.T) {
			if err := status.Validate(); err != nil {
				t.Errorf("valid run status %q failed validation: %v", status, err)
			}
		})
	}
}

// TestRunStatusValidate_Invalid tests an unknown run status
func TestRunStatusValidate_Invalid(t *testing.T) {
	invalidStatus := RunStatus("aborted")
	if err := invalidStatus.Validate(); err == nil {
		t.Error("expected validation to fail for unknown run status, but it passed")
	}
}

// TestStepEventValidate_Valid tests that valid step events pass validation
func TestStepEventValidate_Valid(t *testing.T) {
	step := &StepEvent{
		RunID: uuid.New().String(),
		Seq:   1,
		AtMs:  time.Now().UnixMilli(),
		Op:    "aspirate",
		Text:  "aspirate 40.0 uL from tubes A1",
	}

	if err := step.Validate(); err != nil {
		t.Errorf("valid step event failed validation: %v", err)
	}
}

// TestStepEventValidate_InvalidRunID tests that a non-UUID run ID fails validation
func TestStepEventValidate_InvalidRunID(t *testing.T) {
	step := &StepEvent{
		RunID: "not-a-uuid",
		Seq:   1,
		AtMs:  time.Now().UnixMilli(),
		Op:    "aspirate",
	}

	if err := step.Validate(); err == nil {
		t.Error("expected validation to fail for invalid run ID, but it passed")
	}
}

// TestStepEventValidate_InvalidSeq tests that seq < 1 fails validation
func TestStepEventValidate_InvalidSeq(t *testing.T) {
	testCases := []struct {
		name string
		seq  int
	}{
		{"seq 0", 0},
		{"negative seq", -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			step := &StepEvent{
				RunID: uuid.New().String(),
				Seq:   tc.seq,
				AtMs:  time.Now().UnixMilli(),
				Op:    "aspirate",
			}

			if err := step.Validate(); err == nil {
				t.Errorf("expected validation to fail for seq %d, but it passed", tc.seq)
			}
		})
	}
}

// TestStepEventValidate_EmptyOp tests that an empty op fails validation
func TestStepEventValidate_EmptyOp(t *testing.T) {
	step := &StepEvent{
		RunID: uuid.New().String(),
		Seq:   1,
		AtMs:  time.Now().UnixMilli(),
		Op:    "",
	}

	if err := step.Validate(); err == nil {
		t.Error("expected validation to fail for empty op, but it passed")
	}
}

// TestIsValidUUID tests the UUID validation helper
func TestIsValidUUID(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid UUID v4", uuid.New().String(), true},
		{"valid UUID with hyphens", "9b2d7a06-3f1c-4e8a-b5d9-0c4f2e7a1d63", true},
		{"invalid - not a UUID", "run-42", false},
		{"invalid - empty string", "", false},
		{"invalid - too short", "9b2d7a06", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := isValidUUID(tc.input)
			if result != tc.expected {
				t.Errorf("isValidUUID(%q) = %v, expected %v", tc.input, result, tc.expected)
			}
		})
	}
}
