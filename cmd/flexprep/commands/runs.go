package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/flexprep/internal/printer"
	"github.com/dyluth/flexprep/internal/resolver"
	"github.com/dyluth/flexprep/internal/runs"
	"github.com/dyluth/flexprep/internal/timespec"
	"github.com/dyluth/flexprep/pkg/runlog"
	"github.com/spf13/cobra"
)

var (
	runsOutputFormat string
	runsSince        string
	runsUntil        string
	runsProtocol     string
	runsStatus       string
	runsWithSteps    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs [RUN_ID]",
	Short: "Inspect journaled runs with filtering",
	Long: `Inspect the workcell's run journal in list or get mode.

List Mode (no RUN_ID):
  Displays runs matching filters as a table or JSONL stream, in start order.

Get Mode (with RUN_ID):
  Displays complete details of a single run as pretty-printed JSON.
  Supports short IDs (e.g., "abc123" instead of full UUID).

Output Formats (list mode only):
  default - Human-readable table: ID, protocol, name, status, mixes, steps,
            age and duration
  jsonl   - Line-delimited JSON, one run per line

Time Filters (list mode only):
  --since  - Show runs started after this time
  --until  - Show runs started before this time

Content Filters (list mode only):
  --protocol - Filter by protocol (exact match: "mix", "aliquot")
  --status   - Filter by status (exact match: "running", "completed", "failed")

Examples:
  # List all runs
  flexprep runs

  # This morning's failures
  flexprep runs --status=failed --since=8h

  # Export runs as JSONL for piping to jq
  flexprep runs --output=jsonl | jq 'select(.protocol=="mix") | .id'

  # Get a specific run with its step log
  flexprep runs abc123 --steps`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVarP(&runsOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")

	// Time-based filters
	runsCmd.Flags().StringVar(&runsSince, "since", "", "Show runs started after time (duration or RFC3339)")
	runsCmd.Flags().StringVar(&runsUntil, "until", "", "Show runs started before time (duration or RFC3339)")

	// Content-based filters
	runsCmd.Flags().StringVar(&runsProtocol, "protocol", "", "Filter by protocol (mix or aliquot)")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Filter by status (running, completed, or failed)")

	// Get-mode options
	runsCmd.Flags().BoolVar(&runsWithSteps, "steps", false, "Include the step log (get mode only)")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Determine mode based on arguments
	isGetMode := len(args) > 0

	// Validate output format and filters (only apply to list mode)
	var outputFormat runs.OutputFormat
	if !isGetMode {
		switch runsOutputFormat {
		case "default":
			outputFormat = runs.OutputFormatDefault
		case "jsonl":
			outputFormat = runs.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", runsOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}

		if runsProtocol != "" {
			if err := runlog.Protocol(runsProtocol).Validate(); err != nil {
				return printer.Error(
					"invalid protocol filter",
					err.Error(),
					[]string{"Valid protocols: mix, aliquot"},
				)
			}
		}
		if runsStatus != "" {
			if err := runlog.RunStatus(runsStatus).Validate(); err != nil {
				return printer.Error(
					"invalid status filter",
					err.Error(),
					[]string{"Valid statuses: running, completed, failed"},
				)
			}
		}
	}

	cfg, err := loadWorkcell()
	if err != nil {
		return err
	}

	jClient, err := requireJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer jClient.Close()

	if isGetMode {
		// Get mode: resolve short ID and fetch the run
		shortID := args[0]

		fullID, err := resolver.ResolveRunID(ctx, jClient, shortID)
		if err != nil {
			if resolver.IsNotFoundError(err) {
				return printer.Error(
					fmt.Sprintf("run with ID '%s' not found", shortID),
					"The specified run does not exist in the journal.",
					[]string{
						"List all runs:\n  flexprep runs",
						"Older entries may have expired from the journal",
					},
				)
			}
			if resolver.IsAmbiguousError(err) {
				ambigErr := err.(*resolver.AmbiguousError)
				fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
				return fmt.Errorf("ambiguous short ID")
			}
			return fmt.Errorf("failed to resolve run ID: %w", err)
		}

		err = runs.ShowRun(ctx, jClient, fullID, runsWithSteps, os.Stdout)
		if err != nil {
			if runs.IsNotFound(err) {
				return printer.Error(
					fmt.Sprintf("run with ID '%s' not found", fullID),
					"The run was resolved but could not be fetched.",
					[]string{
						"This might indicate a race condition. Try again.",
					},
				)
			}
			return fmt.Errorf("failed to get run: %w", err)
		}
	} else {
		// List mode: parse filters and fetch runs
		sinceMS, untilMS, err := timespec.ParseRange(runsSince, runsUntil)
		if err != nil {
			return printer.Error(
				"invalid time filter",
				err.Error(),
				[]string{"Use duration format like '1h30m' or RFC3339 like '2026-08-25T13:00:00Z'"},
			)
		}

		filterCriteria := &runs.FilterCriteria{
			SinceTimestampMs: sinceMS,
			UntilTimestampMs: untilMS,
			Protocol:         runsProtocol,
			Status:           runsStatus,
		}

		err = runs.ListRuns(ctx, jClient, outputFormat, filterCriteria, os.Stdout)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
	}

	return nil
}
