package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dyluth/flexprep/internal/printer"
	"github.com/dyluth/flexprep/internal/robot"
	"github.com/spf13/cobra"
)

var planOutputFormat string

var planCmd = &cobra.Command{
	Use:   "plan {mix|aliquot}",
	Short: "Compile a protocol and print every step without a robot",
	Long: `Compile a protocol and walk it against the simulator, printing every
step the robot would execute. Nothing is contacted and nothing moves.

The step list is exactly what 'flexprep run' would issue, including tip
pickups, rack swaps and incubation delays, so it doubles as a pre-run
review of the whole procedure.

Output Formats:
  default - Numbered human-readable steps plus a tip usage summary
  json    - Line-delimited JSON, one command object per step, as the
            robot gateway would post them

Examples:
  # Print the mix build for the configured layout
  flexprep plan mix

  # Print the aliquoting run
  flexprep plan aliquot

  # Export the command stream for review tooling
  flexprep plan mix --output=json > steps.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if planOutputFormat != "default" && planOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", planOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadWorkcell()
	if err != nil {
		return err
	}

	c, err := compileProtocol(cfg, args[0])
	if err != nil {
		return err
	}

	sim := robot.NewSimulator()
	registerSimRacks(sim, c.racks)

	run, err := c.Bind(sim)
	if err != nil {
		return err
	}

	if err := run.Execute(ctx); err != nil {
		return printer.Error(
			"plan fails in simulation",
			err.Error(),
			[]string{"Fix the reported problem and plan again"},
		)
	}

	steps := sim.Steps()

	if planOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		for _, step := range steps {
			if err := enc.Encode(step); err != nil {
				return fmt.Errorf("failed to encode step: %w", err)
			}
		}
		return nil
	}

	for i, step := range steps {
		printer.Printf("%5d  %s\n", i+1, step)
	}

	printer.Println()
	printer.Info("%s plan: %d mixes, %d steps\n", args[0], c.Mixes(), len(steps))
	for _, u := range run.Usage() {
		printer.Info("  %s tips: %d used, %d swaps, %d remaining\n", u.Class, u.Used, u.Swaps, u.Remaining)
	}

	return nil
}
