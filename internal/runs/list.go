package runs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dyluth/flexprep/pkg/runlog"
)

// OutputFormat specifies how to format the run list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated fields
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete run records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FilterCriteria defines filtering options for the runs list command.
// All filters are ANDed together.
type FilterCriteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	Protocol         string // Exact match for protocol, empty = no filter
	Status           string // Exact match for status, empty = no filter
}

// matchesFilter returns true if the run matches all filter criteria.
func (fc *FilterCriteria) matchesFilter(r *runlog.RunRecord) bool {
	// Time filtering on run start
	if fc.SinceTimestampMs > 0 && r.StartedAtMs < fc.SinceTimestampMs {
		return false
	}
	if fc.UntilTimestampMs > 0 && r.StartedAtMs > fc.UntilTimestampMs {
		return false
	}

	if fc.Protocol != "" && string(r.Protocol) != fc.Protocol {
		return false
	}

	if fc.Status != "" && string(r.Status) != fc.Status {
		return false
	}

	return true
}

// ListRuns retrieves all runs for a workcell and writes them to the provided writer.
// Applies filter criteria if provided. Sorts runs by start time for stable output.
// Skips malformed records with a warning to stderr but continues processing.
func ListRuns(ctx context.Context, jClient *runlog.Client, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	ids, err := jClient.ScanRuns(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to scan runs: %w", err)
	}

	var records []*runlog.RunRecord
	for _, id := range ids {
		record, err := jClient.GetRun(ctx, id)
		if err != nil {
			// Skip malformed records with warning to stderr
			fmt.Fprintf(os.Stderr, "⚠️  Skipping malformed run record: id=%s (error: %v)\n", id, err)
			continue
		}

		if filters != nil && !filters.matchesFilter(record) {
			continue
		}

		records = append(records, record)
	}

	// Sort by start time (oldest first) for chronological output
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAtMs < records[j].StartedAtMs
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, records, jClient.Workcell())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, records); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
