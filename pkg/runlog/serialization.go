package runlog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores run records as string-to-string maps (hashes). The tip usage
// map is JSON-encoded into a single hash field; everything else stays a
// plain field so individual values can be read without decoding the record.

// RunToHash converts a RunRecord to a Redis hash format.
func RunToHash(r *RunRecord) (map[string]interface{}, error) {
	tipsJSON, err := json.Marshal(r.TipsUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tips_used: %w", err)
	}

	hash := map[string]interface{}{
		"id":            r.ID,
		"workcell":      r.Workcell,
		"protocol":      string(r.Protocol),
		"name":          r.Name,
		"status":        string(r.Status),
		"mixes":         r.Mixes,
		"started_at_ms": r.StartedAtMs,
		"ended_at_ms":   r.EndedAtMs,
		"error":         r.Error,
		"steps":         r.Steps,
		"tips_used":     string(tipsJSON),
	}

	return hash, nil
}

// HashToRun converts a Redis hash to a RunRecord.
func HashToRun(hash map[string]string) (*RunRecord, error) {
	mixes, err := strconv.Atoi(hash["mixes"])
	if err != nil {
		return nil, fmt.Errorf("invalid mixes field: %w", err)
	}

	steps, err := strconv.Atoi(hash["steps"])
	if err != nil {
		return nil, fmt.Errorf("invalid steps field: %w", err)
	}

	startedAtMs, err := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at_ms field: %w", err)
	}
	endedAtMs, _ := strconv.ParseInt(hash["ended_at_ms"], 10, 64)

	var tipsUsed map[string]int
	if tipsJSON := hash["tips_used"]; tipsJSON != "" && tipsJSON != "null" {
		if err := json.Unmarshal([]byte(tipsJSON), &tipsUsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tips_used: %w", err)
		}
	}

	record := &RunRecord{
		ID:          hash["id"],
		Workcell:    hash["workcell"],
		Protocol:    Protocol(hash["protocol"]),
		Name:        hash["name"],
		Status:      RunStatus(hash["status"]),
		Mixes:       mixes,
		StartedAtMs: startedAtMs,
		EndedAtMs:   endedAtMs,
		Error:       hash["error"],
		Steps:       steps,
		TipsUsed:    tipsUsed,
	}

	return record, nil
}
