package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dyluth/flexprep/pkg/runlog"
)

// OutputFormat specifies how streamed events are rendered.
type OutputFormat string

const (
	// OutputFormatDefault renders human-readable lines with timestamps and emojis
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON renders line-delimited JSON for programmatic processing
	OutputFormatJSON OutputFormat = "json"
)

// eventFormatter renders run events to an output stream.
type eventFormatter interface {
	FormatLifecycle(record *runlog.RunRecord) error
	FormatStep(step *runlog.StepEvent) error
}

// StreamActivity subscribes to the workcell's run events and renders them to
// the writer until the context is cancelled. A non-empty runID narrows the
// stream to that run; empty streams every run on the workcell. Malformed
// events are reported to stderr and skipped; the stream continues.
func StreamActivity(ctx context.Context, jClient *runlog.Client, runID string, format OutputFormat, w io.Writer) error {
	var formatter eventFormatter
	switch format {
	case OutputFormatDefault:
		formatter = &defaultFormatter{writer: w}
	case OutputFormatJSON:
		formatter = &jsonFormatter{writer: w}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	sub, err := jClient.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to run events: %w", err)
	}
	defer sub.Close()

	if format == OutputFormatDefault {
		if runID != "" {
			fmt.Fprintf(w, "Watching run %s on workcell '%s' (Ctrl+C to stop)\n\n", shortID(runID), jClient.Workcell())
		} else {
			fmt.Fprintf(w, "Watching workcell '%s' for run activity (Ctrl+C to stop)\n\n", jClient.Workcell())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "⚠️  Skipping malformed event: %v\n", err)

		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if !matchesRun(event, runID) {
				continue
			}
			if err := renderEvent(formatter, event); err != nil {
				return fmt.Errorf("failed to render event: %w", err)
			}
		}
	}
}

// matchesRun reports whether an event belongs to the watched run. An empty
// runID matches everything.
func matchesRun(event *runlog.RunEvent, runID string) bool {
	if runID == "" {
		return true
	}
	switch event.Kind {
	case runlog.EventKindLifecycle:
		return event.Run != nil && event.Run.ID == runID
	case runlog.EventKindStep:
		return event.Step != nil && event.Step.RunID == runID
	}
	return false
}

// renderEvent dispatches one event to the formatter. Events with no payload
// for their kind are skipped.
func renderEvent(formatter eventFormatter, event *runlog.RunEvent) error {
	switch event.Kind {
	case runlog.EventKindLifecycle:
		if event.Run == nil {
			return nil
		}
		return formatter.FormatLifecycle(event.Run)
	case runlog.EventKindStep:
		if event.Step == nil {
			return nil
		}
		return formatter.FormatStep(event.Step)
	default:
		return nil
	}
}

// defaultFormatter renders events as human-readable lines.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatLifecycle(record *runlog.RunRecord) error {
	switch record.Status {
	case runlog.RunStatusRunning:
		_, err := fmt.Fprintf(f.writer, "%s 🚀 Run started: protocol=%s id=%s mixes=%d\n",
			eventClock(record.StartedAtMs), record.Protocol, shortID(record.ID), record.Mixes)
		return err
	case runlog.RunStatusCompleted:
		_, err := fmt.Fprintf(f.writer, "%s ✅ Run completed: id=%s steps=%d took=%s\n",
			eventClock(record.EndedAtMs), shortID(record.ID), record.Steps, runDuration(record))
		return err
	case runlog.RunStatusFailed:
		_, err := fmt.Fprintf(f.writer, "%s ❌ Run failed: id=%s error=%s\n",
			eventClock(record.EndedAtMs), shortID(record.ID), record.Error)
		return err
	}
	return nil
}

func (f *defaultFormatter) FormatStep(step *runlog.StepEvent) error {
	text := step.Text
	if text == "" {
		text = step.Op
	}
	_, err := fmt.Fprintf(f.writer, "%s 💧 [%s] #%d %s\n",
		eventClock(step.AtMs), shortID(step.RunID), step.Seq, text)
	return err
}

// jsonFormatter renders events as line-delimited JSON.
type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) FormatLifecycle(record *runlog.RunRecord) error {
	event := "run_started"
	switch record.Status {
	case runlog.RunStatusCompleted:
		event = "run_completed"
	case runlog.RunStatusFailed:
		event = "run_failed"
	}

	payload := struct {
		Event string `json:"event"`
		*runlog.RunRecord
	}{Event: event, RunRecord: record}

	return f.writeLine(payload)
}

func (f *jsonFormatter) FormatStep(step *runlog.StepEvent) error {
	payload := struct {
		Event string `json:"event"`
		*runlog.StepEvent
	}{Event: "step", StepEvent: step}

	return f.writeLine(payload)
}

func (f *jsonFormatter) writeLine(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}

// eventClock formats an event timestamp as wall-clock time for display.
func eventClock(timestampMs int64) string {
	if timestampMs == 0 {
		return time.Now().Format("15:04:05")
	}
	return time.UnixMilli(timestampMs).Format("15:04:05")
}

// shortID truncates a run ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// runDuration renders how long a finished run took.
func runDuration(record *runlog.RunRecord) string {
	if record.EndedAtMs == 0 || record.StartedAtMs == 0 || record.EndedAtMs < record.StartedAtMs {
		return "-"
	}
	return (time.Duration(record.EndedAtMs-record.StartedAtMs) * time.Millisecond).Round(time.Second).String()
}
