package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/flexprep/internal/config"
	"github.com/dyluth/flexprep/internal/layout"
	"github.com/dyluth/flexprep/internal/plan"
	"github.com/dyluth/flexprep/internal/printer"
	"github.com/dyluth/flexprep/internal/protocol"
	"github.com/dyluth/flexprep/internal/robot"
	"github.com/dyluth/flexprep/pkg/runlog"
	"github.com/redis/go-redis/v9"
)

// loadWorkcell loads and validates the configuration named by the global
// --config flag.
func loadWorkcell() (*config.WorkcellConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"failed to load workcell configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{
				"Run 'flexprep init' in an empty directory to create a starter workcell.yml",
				"Fix the reported field and validate again:\n  flexprep validate",
			},
		)
	}
	return cfg, nil
}

// connectJournal opens the run journal configured in workcell.yml. The
// caller owns the returned client. Callers decide whether a journal is
// required; this fails only on a bad URL or an unreachable Redis.
func connectJournal(ctx context.Context, cfg *config.WorkcellConfig) (*runlog.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.Journal.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse journal redis_url: %w", err)
	}

	jClient, err := runlog.NewClient(redisOpts, cfg.Workcell)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal client: %w", err)
	}

	if err := jClient.Ping(ctx); err != nil {
		jClient.Close()
		return nil, fmt.Errorf("journal not reachable at %s: %w", cfg.Journal.RedisURL, err)
	}

	return jClient, nil
}

// requireJournal is connectJournal for commands that cannot work without
// one, with operator-facing guidance on failure.
func requireJournal(ctx context.Context, cfg *config.WorkcellConfig) (*runlog.Client, error) {
	if cfg.Journal == nil {
		return nil, printer.Error(
			"no run journal configured",
			fmt.Sprintf("Workcell '%s' has no journal section in its configuration.", cfg.Workcell),
			[]string{"Add one pointing at a Redis instance:\n  journal:\n    redis_url: redis://localhost:6379"},
		)
	}

	jClient, err := connectJournal(ctx, cfg)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"journal connection failed",
			err.Error(),
			map[string]string{"Workcell": cfg.Workcell, "Redis": cfg.Journal.RedisURL},
			[]string{"Check the Redis instance is running and reachable from this machine"},
		)
	}

	return jClient, nil
}

// compiled carries one compiled protocol, ready to bind to a controller.
type compiled struct {
	mix     *protocol.MixPlan
	aliquot *protocol.AliquotPlan
	racks   []plan.RackConfig
}

// protocolRun is the common surface of the two bound runs.
type protocolRun interface {
	Execute(ctx context.Context) error
	Usage() []plan.Usage
}

// compileProtocol compiles the named protocol. Compilation is pure: it
// fails fast on layout or parameter problems before any robot or journal
// connection is attempted.
func compileProtocol(cfg *config.WorkcellConfig, name string) (*compiled, error) {
	switch name {
	case "mix":
		if cfg.Layout == "" {
			return nil, printer.Error(
				"no layout table configured",
				"The mix protocol needs the layout entry in workcell.yml.",
				[]string{"Point it at your plate-layout CSV export:\n  layout: layout.csv"},
			)
		}

		table, err := layout.ReadTableFile(cfg.Layout)
		if err != nil {
			return nil, printer.ErrorWithContext(
				"failed to read layout table",
				err.Error(),
				map[string]string{"Layout": cfg.Layout},
				nil,
			)
		}

		mixPlan, err := protocol.CompileMix(table, cfg.MixDeck(), cfg.MixParams())
		if err != nil {
			return nil, printer.ErrorWithContext(
				"mix plan does not compile",
				err.Error(),
				map[string]string{"Layout": cfg.Layout},
				[]string{"Fix the layout table or the mix section of workcell.yml and validate again"},
			)
		}

		return &compiled{mix: mixPlan, racks: cfg.MixRacks()}, nil

	case "aliquot":
		alqPlan, err := protocol.CompileAliquot(cfg.AliquotDeck(), cfg.AliquotParams())
		if err != nil {
			return nil, printer.Error(
				"aliquot plan does not compile",
				err.Error(),
				[]string{"Fix the aliquot section of workcell.yml and validate again"},
			)
		}

		return &compiled{aliquot: alqPlan, racks: cfg.AliquotRacks()}, nil

	default:
		return nil, printer.Error(
			"unknown protocol",
			fmt.Sprintf("%q is not a protocol flexprep knows.", name),
			[]string{"Valid protocols: mix, aliquot"},
		)
	}
}

// Mixes returns how many mixes the compiled plan covers.
func (c *compiled) Mixes() int {
	if c.mix != nil {
		return len(c.mix.Mixes)
	}
	return len(c.aliquot.MixWells)
}

// Protocol returns the journal protocol tag for the compiled plan.
func (c *compiled) Protocol() runlog.Protocol {
	if c.mix != nil {
		return runlog.ProtocolMix
	}
	return runlog.ProtocolAliquot
}

// Bind builds the tip sequencer and attaches the plan to a controller.
func (c *compiled) Bind(ctrl robot.Controller) (protocolRun, error) {
	tips, err := plan.NewSequencer(c.racks...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tip sequencer: %w", err)
	}
	if c.mix != nil {
		return protocol.NewMixRun(c.mix, ctrl, tips), nil
	}
	return protocol.NewAliquotRun(c.aliquot, ctrl, tips), nil
}

// registerSimRacks teaches a simulator which capacity class each tip rack
// carries, so dry runs get the same volume checking as real ones.
func registerSimRacks(sim *robot.Simulator, racks []plan.RackConfig) {
	for _, rack := range racks {
		sim.RegisterTipRack(rack.Labware, rack.Class)
		if rack.Reserve != "" {
			sim.RegisterTipRack(rack.Reserve, rack.Class)
		}
	}
}
