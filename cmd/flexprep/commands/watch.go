package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/flexprep/internal/printer"
	"github.com/dyluth/flexprep/internal/resolver"
	"github.com/dyluth/flexprep/internal/watch"
	"github.com/spf13/cobra"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:   "watch [RUN_ID]",
	Short: "Monitor run activity in real time",
	Long: `Monitor run activity on the workcell's journal in real time.

Streams run starts, completions, failures, and individual pipetting steps
as they are recorded, usually from a second terminal while 'flexprep run'
drives the robot. With a RUN_ID (short IDs accepted) only that run's
events are shown; without one, every run on the workcell streams.

Requires a journal in workcell.yml; runs executed with --dry-run are not
journaled and will not appear here.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch everything on the configured workcell
  flexprep watch

  # Follow one run by short ID
  flexprep watch abc123

  # Export events as JSON
  flexprep watch --output=json > events.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Validate output format
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
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

	// Resolve the optional run filter before attaching to the stream
	runID := ""
	if len(args) > 0 {
		runID, err = resolver.ResolveRunID(ctx, jClient, args[0])
		if err != nil {
			if resolver.IsNotFoundError(err) {
				return printer.Error(
					fmt.Sprintf("run with ID '%s' not found", args[0]),
					"The specified run does not exist in the journal.",
					[]string{"List recent runs:\n  flexprep runs"},
				)
			}
			if resolver.IsAmbiguousError(err) {
				ambigErr := err.(*resolver.AmbiguousError)
				fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
				return fmt.Errorf("ambiguous short ID")
			}
			return fmt.Errorf("failed to resolve run ID: %w", err)
		}
	}

	return watch.StreamActivity(ctx, jClient, runID, outputFormat, os.Stdout)
}
