package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/flexprep/internal/plan"
	"github.com/dyluth/flexprep/internal/printer"
	"github.com/dyluth/flexprep/internal/protocol"
	"github.com/dyluth/flexprep/internal/robot"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the workcell configuration and layout table",
	Long: `Validate workcell.yml and the layout table without touching the robot.

Loads the configuration, parses the layout CSV, and compiles both protocols
end to end: volume rescaling, vessel allocation, NaCl dispatch planning and
plate geometry. Each plan is then walked through the simulator, so tip
demand and per-transfer volume limits are checked too. Anything that would
stop a run surfaces here.

Examples:
  # Validate the workcell in the current directory
  flexprep validate

  # Validate a specific configuration
  flexprep validate --config bench-b/workcell.yml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadWorkcell()
	if err != nil {
		return err
	}
	printer.Success("configuration loaded: workcell '%s'\n", cfg.Workcell)

	// Mix build: parse the layout table and run the full planning pipeline
	if cfg.Layout == "" {
		printer.Warning("no layout table configured; skipping the mix compile\n")
	} else {
		c, err := compileProtocol(cfg, "mix")
		if err != nil {
			return err
		}
		printMixDetail(c.mix)

		steps, usage, err := projectUsage(ctx, c)
		if err != nil {
			return printer.Error(
				"mix plan fails in simulation",
				err.Error(),
				[]string{"Fix the layout table or the mix section of workcell.yml and validate again"},
			)
		}
		printer.Success("mix plan compiles: %d mixes (%d rescaled), %d steps\n",
			len(c.mix.Mixes), len(c.mix.Rescaled), steps)
		printTipProjection(usage)
	}

	// Aliquoting: resolve the plate geometry and walk the plan
	c, err := compileProtocol(cfg, "aliquot")
	if err != nil {
		return err
	}
	aliquots := 0
	for _, targets := range c.aliquot.Targets {
		aliquots += len(targets)
	}
	steps, usage, err := projectUsage(ctx, c)
	if err != nil {
		return printer.Error(
			"aliquot plan fails in simulation",
			err.Error(),
			[]string{"Fix the aliquot section of workcell.yml and validate again"},
		)
	}
	printer.Success("aliquot plan compiles: %d mix wells feeding %d cell wells, %d steps\n",
		len(c.aliquot.MixWells), aliquots, steps)
	printTipProjection(usage)

	if cfg.Robot != nil {
		printer.Info("robot: %s\n", cfg.Robot.Address)
	} else {
		printer.Warning("no robot section; 'flexprep run' needs one\n")
	}
	if cfg.Journal != nil {
		printer.Info("journal: %s\n", cfg.Journal.RedisURL)
	} else {
		printer.Info("journal: not configured\n")
	}

	printer.Success("workcell '%s' is ready\n", cfg.Workcell)
	return nil
}

// printMixDetail lists every mix with its working volume, any rescaling, and
// the intermediate vessels the planner assigned, then summarises the NaCl
// dispatch per source well.
func printMixDetail(p *protocol.MixPlan) {
	for i := range p.Mixes {
		mix := &p.Mixes[i]

		plasmids := 0
		for _, comp := range mix.Plasmids() {
			if comp.Volume > 0 {
				plasmids++
			}
		}

		line := fmt.Sprintf("  %-4s %d plasmids + NaCl, %.1f µL", mix.Dest, plasmids, mix.Total())
		if mix.ScaleFactor != 1 {
			line += fmt.Sprintf(", scaled x%g", mix.ScaleFactor)
		}
		switch v := p.Vessels[mix.Dest]; {
		case v.Small != "":
			line += fmt.Sprintf(", staged in %s then %s", v.Small, v.Final)
		case v.Final != "":
			line += fmt.Sprintf(", assembled in %s", v.Final)
		}
		printer.Info("%s\n", line)
	}

	for _, d := range p.Saline {
		printer.Info("  NaCl from %s: %.1f µL over %d draws with %s tips\n",
			d.Source, d.Total, len(d.Draws), d.TipClass())
	}
}

// projectUsage walks the compiled plan through the simulator and reports
// the step count and per-class tip usage a real run would consume.
func projectUsage(ctx context.Context, c *compiled) (int, []plan.Usage, error) {
	sim := robot.NewSimulator()
	registerSimRacks(sim, c.racks)

	run, err := c.Bind(sim)
	if err != nil {
		return 0, nil, err
	}
	if err := run.Execute(ctx); err != nil {
		return 0, nil, err
	}
	return len(sim.Steps()), run.Usage(), nil
}

func printTipProjection(usage []plan.Usage) {
	for _, u := range usage {
		printer.Info("  %s tips: %d needed, %d swaps, %d left after\n",
			u.Class, u.Used, u.Swaps, u.Remaining)
	}
}
