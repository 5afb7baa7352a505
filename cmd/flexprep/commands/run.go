package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/flexprep/internal/printer"
	"github.com/dyluth/flexprep/internal/robot"
	"github.com/dyluth/flexprep/pkg/runlog"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runDryRun  bool
	runName    string
	runAddress string
)

var runCmd = &cobra.Command{
	Use:   "run {mix|aliquot}",
	Short: "Execute a protocol on the robot",
	Long: `Compile a protocol and execute it on the robot.

The plan compiles completely before the robot is contacted, so layout and
parameter problems never leave the arm mid-run. If workcell.yml configures
a run journal, every executed step is recorded there; journal problems are
reported but never interrupt pipetting.

Ctrl+C stops the run at the next step boundary and closes the robot
session. Nothing is rolled back: liquid that has moved stays moved.

Examples:
  # Build the mixes from the configured layout
  flexprep run mix

  # Aliquot with an operator label on the journal record
  flexprep run aliquot --name "thursday cells"

  # Simulate without a robot (not recorded in the journal)
  flexprep run mix --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Simulate the run without contacting the robot")
	runCmd.Flags().StringVar(&runName, "name", "", "Operator label recorded with the run")
	runCmd.Flags().StringVar(&runAddress, "address", "", "Robot address, overriding workcell.yml")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadWorkcell()
	if err != nil {
		return err
	}

	c, err := compileProtocol(cfg, args[0])
	if err != nil {
		return err
	}

	// Controller: the robot, or the simulator for a dry run
	var (
		ctrl    robot.Controller
		gateway *robot.Gateway
		sim     *robot.Simulator
	)
	if runDryRun {
		sim = robot.NewSimulator()
		registerSimRacks(sim, c.racks)
		ctrl = sim
	} else {
		address := runAddress
		if address == "" && cfg.Robot != nil {
			address = cfg.Robot.Address
		}
		if address == "" {
			return printer.Error(
				"no robot configured",
				"workcell.yml has no robot section, and this is not a dry run.",
				[]string{
					"Add the robot's address:\n  robot:\n    address: 169.254.49.10",
					fmt.Sprintf("Or pass one for this run:\n  flexprep run %s --address 169.254.49.10", args[0]),
					fmt.Sprintf("Or simulate without hardware:\n  flexprep run %s --dry-run", args[0]),
				},
			)
		}
		printer.Step("Connecting to the robot at %s...\n", address)
		gateway, err = robot.Dial(ctx, address)
		if err != nil {
			return printer.Error("robot unreachable", err.Error(), nil)
		}
		ctrl = gateway
	}

	// Journal: optional, and never blocks pipetting. Dry runs are not
	// recorded; the journal is the bench's history of physical runs.
	var (
		jClient   *runlog.Client
		record    *runlog.RunRecord
		stepCount int
	)
	if cfg.Journal != nil && !runDryRun {
		jClient, err = connectJournal(ctx, cfg)
		if err != nil {
			printer.Warning("run journal unavailable, continuing without it: %v\n", err)
			jClient = nil
		}
	}
	if jClient != nil {
		defer jClient.Close()

		record = &runlog.RunRecord{
			ID:          uuid.New().String(),
			Workcell:    cfg.Workcell,
			Protocol:    c.Protocol(),
			Name:        runName,
			Status:      runlog.RunStatusRunning,
			Mixes:       c.Mixes(),
			StartedAtMs: time.Now().UnixMilli(),
		}
		if err := jClient.CreateRun(ctx, record); err != nil {
			printer.Warning("failed to record the run, continuing without the journal: %v\n", err)
			record = nil
		} else {
			runID := record.ID
			sink := func(ctx context.Context, step robot.Step) error {
				stepCount++
				return jClient.AppendStep(ctx, &runlog.StepEvent{
					RunID: runID,
					Seq:   stepCount,
					AtMs:  time.Now().UnixMilli(),
					Op:    string(step.Op),
					Text:  step.String(),
				})
			}
			ctrl = robot.NewRecorder(ctrl, sink, func(err error) {
				printer.Warning("journal write failed, steps may be missing from the record: %v\n", err)
			})
			printer.Info("journaling as run %s\n", record.ID[:8])
		}
	}

	run, err := c.Bind(ctrl)
	if err != nil {
		return err
	}

	// Open a session on the robot
	if gateway != nil {
		sessionName := runName
		if sessionName == "" {
			sessionName = "flexprep " + args[0]
		}
		if err := gateway.StartRun(ctx, sessionName); err != nil {
			return printer.Error(
				"failed to open a run session",
				err.Error(),
				[]string{"Another client may hold the robot; close its session and retry"},
			)
		}
	}

	// Graceful shutdown: Ctrl+C cancels the run context and the protocol
	// halts at the next step boundary.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	if runDryRun {
		printer.Step("Simulating the %s protocol...\n", args[0])
	} else {
		printer.Step("Running the %s protocol...\n", args[0])
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- run.Execute(runCtx)
	}()

	var execErr error
	select {
	case sig := <-sigCh:
		printer.Warning("received %v, stopping the run...\n", sig)
		cancel()
		execErr = <-errCh
		if execErr == nil {
			execErr = fmt.Errorf("run stopped by %v", sig)
		}
	case execErr = <-errCh:
	}

	// Close the session however the run ended
	if gateway != nil {
		if err := gateway.FinishRun(ctx); err != nil {
			printer.Warning("failed to close the run session: %v\n", err)
		}
	}

	// Finalize the journal record
	if record != nil {
		record.EndedAtMs = time.Now().UnixMilli()
		record.Steps = stepCount
		record.TipsUsed = make(map[string]int)
		for _, u := range run.Usage() {
			record.TipsUsed[fmt.Sprintf("tips%d", u.Class)] = u.Used
		}
		if execErr != nil {
			record.Status = runlog.RunStatusFailed
			record.Error = execErr.Error()
		} else {
			record.Status = runlog.RunStatusCompleted
		}
		if err := jClient.UpdateRun(ctx, record); err != nil {
			printer.Warning("failed to record the run result: %v\n", err)
		}
	}

	if execErr != nil {
		return printer.ErrorWithContext(
			"run failed",
			execErr.Error(),
			map[string]string{"Protocol": args[0]},
			[]string{"The robot pauses with the failure cause; check the deck before the next run"},
		)
	}

	if runDryRun {
		printer.Success("dry run complete: %d steps simulated\n", len(sim.Steps()))
	} else {
		printer.Success("%s run complete\n", args[0])
	}
	for _, u := range run.Usage() {
		printer.Info("  %s tips: %d used, %d remaining\n", u.Class, u.Used, u.Remaining)
	}

	return nil
}
