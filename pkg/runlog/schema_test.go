package runlog

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestRunKey tests run key generation
func TestRunKey(t *testing.T) {
	workcell := "bench-a"
	runID := uuid.New().String()

	key := RunKey(workcell, runID)

	expected := "flexprep:bench-a:run:" + runID
	if key != expected {
		t.Errorf("RunKey() = %q, expected %q", key, expected)
	}

	// Verify format
	if !strings.HasPrefix(key, "flexprep:") {
		t.Error("run key should start with 'flexprep:'")
	}
	if !strings.Contains(key, ":run:") {
		t.Error("run key should contain ':run:'")
	}
}

// TestRunStepsKey tests step list key generation
func TestRunStepsKey(t *testing.T) {
	workcell := "bench-a"
	runID := uuid.New().String()

	key := RunStepsKey(workcell, runID)

	expected := "flexprep:bench-a:run:" + runID + ":steps"
	if key != expected {
		t.Errorf("RunStepsKey() = %q, expected %q", key, expected)
	}

	// Verify format
	if !strings.HasPrefix(key, "flexprep:") {
		t.Error("steps key should start with 'flexprep:'")
	}
	if !strings.HasSuffix(key, ":steps") {
		t.Error("steps key should end with ':steps'")
	}
}

// TestRunScanPattern tests the scan pattern for run listing
func TestRunScanPattern(t *testing.T) {
	pattern := RunScanPattern("bench-a")

	expected := "flexprep:bench-a:run:*"
	if pattern != expected {
		t.Errorf("RunScanPattern() = %q, expected %q", pattern, expected)
	}

	// The pattern also matches step list keys; callers must filter those out
	runID := uuid.New().String()
	if !strings.HasPrefix(RunStepsKey("bench-a", runID), strings.TrimSuffix(pattern, "*")) {
		t.Error("scan pattern prefix should cover step list keys")
	}
}

// TestRunEventsChannel tests run events channel name generation
func TestRunEventsChannel(t *testing.T) {
	channel := RunEventsChannel("bench-a")

	expected := "flexprep:bench-a:run_events"
	if channel != expected {
		t.Errorf("RunEventsChannel() = %q, expected %q", channel, expected)
	}

	// Verify format
	if !strings.HasPrefix(channel, "flexprep:") {
		t.Error("run events channel should start with 'flexprep:'")
	}
	if !strings.HasSuffix(channel, ":run_events") {
		t.Error("run events channel should end with ':run_events'")
	}
}

// TestWorkcellKeyNamespacing tests that different workcell names produce different keys
func TestWorkcellKeyNamespacing(t *testing.T) {
	runID := uuid.New().String()

	key1 := RunKey("bench-a", runID)
	key2 := RunKey("bench-b", runID)

	if key1 == key2 {
		t.Error("keys for different workcells should be different")
	}

	// But they should both contain the same run ID
	if !strings.Contains(key1, runID) || !strings.Contains(key2, runID) {
		t.Error("both keys should contain the run ID")
	}

	channel1 := RunEventsChannel("bench-a")
	channel2 := RunEventsChannel("bench-b")
	if channel1 == channel2 {
		t.Error("channels for different workcells should be different")
	}
}
