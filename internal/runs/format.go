package runs

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/flexprep/pkg/runlog"
)

// FormatTable writes run records as a formatted table to the provided writer.
// The table includes columns: ID, PROTOCOL, NAME, STATUS, MIXES, STEPS, AGE,
// and TOOK (run duration). Returns the number of runs formatted.
func FormatTable(w io.Writer, records []*runlog.RunRecord, workcell string) int {
	if len(records) == 0 {
		fmt.Fprintf(w, "No runs found for workcell '%s'\n", workcell)
		return 0
	}

	// Print header
	fmt.Fprintf(w, "Runs for workcell '%s':\n\n", workcell)

	// Print header row
	fmt.Fprintf(w, "%-10s %-9s %-18s %-10s %5s %6s %-8s %s\n",
		"ID", "PROTOCOL", "NAME", "STATUS", "MIXES", "STEPS", "AGE", "TOOK")
	fmt.Fprintf(w, "%-10s %-9s %-18s %-10s %5s %6s %-8s %s\n",
		"----------", "---------", "------------------", "----------", "-----", "------", "--------", "--------")

	// Print data rows
	for _, r := range records {
		fmt.Fprintf(w, "%-10s %-9s %-18s %-10s %5d %6d %-8s %s\n",
			formatID(r.ID),
			r.Protocol,
			formatName(r.Name),
			r.Status,
			r.Mixes,
			r.Steps,
			formatAge(r.StartedAtMs),
			formatDuration(r.StartedAtMs, r.EndedAtMs),
		)
	}

	// Print count
	countMsg := "run"
	if len(records) != 1 {
		countMsg = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(records), countMsg)

	return len(records)
}

// FormatJSONL writes run records as line-delimited JSON (JSONL) to the provided writer.
// Each record is written as a single JSON object on its own line.
// This format is ideal for streaming and processing with tools like jq.
func FormatJSONL(w io.Writer, records []*runlog.RunRecord) error {
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal run record to JSON: %w", err)
		}

		_, err = fmt.Fprintf(w, "%s\n", string(data))
		if err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes a single run record as pretty-printed JSON to the provided writer.
// Used in show mode to display complete run details.
func FormatSingleJSON(w io.Writer, record *runlog.RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record to JSON: %w", err)
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	// Add newline for clean output
	fmt.Fprintln(w)

	return nil
}

// FormatSteps writes a run's step transcript to the provided writer,
// one numbered line per step in execution order.
func FormatSteps(w io.Writer, steps []runlog.StepEvent) {
	if len(steps) == 0 {
		fmt.Fprintln(w, "No steps recorded")
		return
	}

	for _, step := range steps {
		text := step.Text
		if text == "" {
			text = step.Op
		}
		fmt.Fprintf(w, "%5d  %s\n", step.Seq, text)
	}
}

// formatID truncates a run ID to first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatName truncates run names for table display. Empty names return "-".
func formatName(name string) string {
	if name == "" {
		return "-"
	}
	if len(name) > 18 {
		return name[:15] + "..."
	}
	return name
}

// formatAge formats Unix timestamp in milliseconds to human-readable time.
// Shows relative time like "2m ago", "1h ago", etc.
func formatAge(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.Unix(timestampMs/1000, (timestampMs%1000)*1000000)
	diff := time.Since(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	} else {
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// formatDuration formats how long a run took. Shows "-" while still running.
func formatDuration(startedAtMs, endedAtMs int64) string {
	if endedAtMs == 0 || startedAtMs == 0 || endedAtMs < startedAtMs {
		return "-"
	}

	d := time.Duration(endedAtMs-startedAtMs) * time.Millisecond
	return d.Round(time.Second).String()
}
