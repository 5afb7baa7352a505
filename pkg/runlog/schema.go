package runlog

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by workcell name so
// multiple benches can share one Redis server.
//
// Key pattern: flexprep:{workcell}:{entity}:{uuid}
// Channel pattern: flexprep:{workcell}:run_events

// RunKey returns the Redis key for a run record hash.
// Pattern: flexprep:{workcell}:run:{run_id}
func RunKey(workcell, runID string) string {
	return fmt.Sprintf("flexprep:%s:run:%s", workcell, runID)
}

// RunStepsKey returns the Redis key for a run's step list.
// Pattern: flexprep:{workcell}:run:{run_id}:steps
func RunStepsKey(workcell, runID string) string {
	return fmt.Sprintf("flexprep:%s:run:%s:steps", workcell, runID)
}

// RunScanPattern returns the SCAN pattern matching every run record key on
// a workcell. The pattern also matches step-list keys; callers filter those
// out by the trailing ":steps" suffix.
func RunScanPattern(workcell string) string {
	return fmt.Sprintf("flexprep:%s:run:*", workcell)
}

// RunEventsChannel returns the Pub/Sub channel name for run events.
// Pattern: flexprep:{workcell}:run_events
func RunEventsChannel(workcell string) string {
	return fmt.Sprintf("flexprep:%s:run_events", workcell)
}
