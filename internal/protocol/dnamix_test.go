package protocol

import (
	"context"
	"fmt"
	"testing"

	"github.com/dyluth/flexprep/internal/labware"
	"github.com/dyluth/flexprep/internal/layout"
	"github.com/dyluth/flexprep/internal/plan"
	"github.com/dyluth/flexprep/internal/robot"
	"github.com/dyluth/flexprep/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeck() MixDeck {
	return MixDeck{Module: "heatershaker", Plate: "pcr", Tubes: "tubes"}
}

func testParams(mixCount int) MixParams {
	return MixParams{
		MixCount:  mixCount,
		SmallPool: []string{"C1", "C2", "C3", "C4", "C5", "C6"},
		FinalPool: []string{"D1", "D2", "D3", "D4", "D5", "D6"},
	}
}

// scenarioBlocks builds three mixes of 5 µL + 0.5 µL plasmids and 10 µL of
// NaCl drawn from one shared tube.
func scenarioBlocks() []testutil.MixBlock {
	blocks := make([]testutil.MixBlock, 3)
	for i := range blocks {
		blocks[i] = testutil.MixBlock{
			Dest:    fmt.Sprintf("A%d", i+1),
			Names:   []string{"pUC19", "pGEM", layout.SalineName},
			Volumes: []string{"5", "0.5", "10"},
			Sources: []string{"A1", "A2", "B1"},
		}
	}
	return blocks
}

func compileBlocks(t *testing.T, params MixParams, blocks ...testutil.MixBlock) *MixPlan {
	t.Helper()
	p, err := CompileMix(layout.Table(testutil.LayoutRows(blocks...)), testDeck(), params)
	require.NoError(t, err)
	return p
}

// newSimRun wires a compiled plan to a fresh simulator with the standard
// deck: a 50 µL rack with a reserve, and a 200 µL rack without one.
func newSimRun(t *testing.T, p *MixPlan) (*MixRun, *robot.Simulator) {
	t.Helper()
	sim := robot.NewSimulator()
	sim.RegisterTipRack("tips50", labware.Tip50)
	sim.RegisterTipRack("tips50reserve", labware.Tip50)
	sim.RegisterTipRack("tips200", labware.Tip200)

	tips, err := plan.NewSequencer(
		plan.RackConfig{
			Class: labware.Tip50, Mount: robot.MountLeft, Labware: "tips50",
			Reserve: "tips50reserve", ActiveSlot: "B1", HoldSlot: "C4",
		},
		plan.RackConfig{
			Class: labware.Tip200, Mount: robot.MountRight, Labware: "tips200", ActiveSlot: "B2",
		},
	)
	require.NoError(t, err)
	return NewMixRun(p, sim, tips), sim
}

func TestCompileMixScenario(t *testing.T) {
	p := compileBlocks(t, testParams(3), scenarioBlocks()...)

	require.Len(t, p.Mixes, 3)
	assert.Equal(t, []int{0, 1, 2}, p.Rescaled)
	for i, mix := range p.Mixes {
		assert.InDelta(t, 1.6, mix.ScaleFactor, 1e-12, "0.5 µL lifts to 0.8 with factor 1.6")

		assigned := p.Vessels[mix.Dest]
		assert.Empty(t, assigned.Small, "a single small component needs no staging vessel")
		assert.Equal(t, fmt.Sprintf("D%d", i+1), assigned.Final)
	}

	require.Len(t, p.Saline, 1, "one shared NaCl source means one dispatch")
	d := p.Saline[0]
	assert.Equal(t, "B1", d.Source)
	assert.InDelta(t, 48.0, d.Total, 1e-12, "three scaled draws of 16 µL")
	assert.Equal(t, labware.Tip50, d.TipClass())

	groups, err := d.Pack(d.TipClass())
	require.NoError(t, err)
	assert.Len(t, groups, 1, "48 µL sits exactly at the single-draw boundary")

	// Every mix has a small component, so its NaCl lands in the final vessel.
	for i, draw := range d.Draws {
		assert.Equal(t, labware.At("tubes", fmt.Sprintf("D%d", i+1)), draw.Dest)
	}
}

func TestMixRunScenarioEndToEnd(t *testing.T) {
	p := compileBlocks(t, testParams(3), scenarioBlocks()...)
	run, sim := newSimRun(t, p)

	require.NoError(t, run.Execute(context.Background()))
	steps := sim.Steps()
	require.NotEmpty(t, steps)

	assert.Equal(t, robot.OpCloseLatch, steps[0].Op)
	assert.Equal(t, "heatershaker", steps[0].Labware)

	// NaCl is distributed before any plasmid moves: the very first aspirate
	// is the single 50 µL draw (48 + 2 buffer) from the shared tube.
	aspirates := sim.StepsOf(robot.OpAspirate)
	require.NotEmpty(t, aspirates)
	assert.Equal(t, labware.At("tubes", "B1"), *aspirates[0].Location)
	assert.InDelta(t, 50.0, aspirates[0].Volume, 1e-12)
	assert.Equal(t, robot.MountLeft, aspirates[0].Mount)

	dispenses := sim.StepsOf(robot.OpDispense)
	require.GreaterOrEqual(t, len(dispenses), 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, labware.At("tubes", fmt.Sprintf("D%d", i+1)), *dispenses[i].Location)
		assert.InDelta(t, 16.0, dispenses[i].Volume, 1e-12)
	}

	// Per mix: the scaled small straight into the final vessel, the scaled
	// normal after it, then the back-transfer of the original 15.5 µL total.
	var backTransfers []robot.Step
	for _, st := range dispenses {
		if st.Location.Labware == "pcr" {
			backTransfers = append(backTransfers, st)
		}
	}
	require.Len(t, backTransfers, 3)
	for i, st := range backTransfers {
		assert.InDelta(t, 15.5, st.Volume, 1e-12, "destination receives the original total, not the scaled one")
		assert.Equal(t, fmt.Sprintf("A%d", i+1), st.Location.Well)
		assert.Equal(t, labware.RefBottom, st.Location.Ref)
	}

	// The stirring before each back-transfer happens in the final vessel.
	mixes := sim.StepsOf(robot.OpMix)
	require.Len(t, mixes, 3)
	for i, st := range mixes {
		assert.Equal(t, labware.At("tubes", fmt.Sprintf("D%d", i+1)).Bottom(1), *st.Location)
		assert.Equal(t, 3, st.Repetitions)
		assert.InDelta(t, 0.8*15.5, st.Volume, 1e-12)
	}

	// Single-use tips: every pickup has its drop, all on the 50 µL class.
	pickups := sim.StepsOf(robot.OpPickUpTip)
	drops := sim.StepsOf(robot.OpDropTip)
	assert.Len(t, pickups, 10, "one NaCl tip plus three per mix")
	assert.Len(t, drops, 10)

	usage := run.Usage()
	require.Len(t, usage, 2)
	assert.Equal(t, plan.Usage{Class: labware.Tip50, Used: 10, Dropped: 10, Remaining: 86}, usage[0])
	assert.Equal(t, plan.Usage{Class: labware.Tip200, Remaining: 96}, usage[1])

	last := steps[len(steps)-1]
	assert.Equal(t, robot.OpComment, last.Op, "the run ends with the tip report")
	assert.Equal(t, robot.OpOpenLatch, sim.StepsOf(robot.OpOpenLatch)[0].Op)
}

func TestMixRunPoolsMultipleSmalls(t *testing.T) {
	block := testutil.MixBlock{
		Dest:    "B1",
		Names:   []string{"pA", "pB", "pC", layout.SalineName},
		Volumes: []string{"0.2", "0.2", "5", "10"},
		Sources: []string{"A1", "A2", "A3", "B1"},
	}
	p := compileBlocks(t, testParams(1), block)

	require.InDelta(t, 2.0, p.Mixes[0].ScaleFactor, 1e-12, "pooled smalls lift their sum to 0.8")
	assigned := p.Vessels["B1"]
	require.Equal(t, "C1", assigned.Small)
	require.Equal(t, "D1", assigned.Final)

	run, sim := newSimRun(t, p)
	require.NoError(t, run.Execute(context.Background()))

	// Each 0.2 µL component stages at ×10 of its scaled volume: 4 µL into
	// the staging vessel.
	staging := 0
	for _, st := range sim.StepsOf(robot.OpDispense) {
		if st.Location.Labware == "tubes" && st.Location.Well == "C1" {
			assert.InDelta(t, 4.0, st.Volume, 1e-12)
			staging++
		}
	}
	assert.Equal(t, 2, staging)

	// The pooled stage is stirred and carried forward at original scale.
	mixSteps := sim.StepsOf(robot.OpMix)
	require.Len(t, mixSteps, 2, "one stir in the staging vessel, one before the back-transfer")
	assert.Equal(t, labware.At("tubes", "C1").Bottom(0.1), *mixSteps[0].Location)
	assert.InDelta(t, 0.8*8.0, mixSteps[0].Volume, 1e-12)

	var carried bool
	for _, st := range sim.StepsOf(robot.OpAspirate) {
		if *st.Location == labware.At("tubes", "C1").Bottom(0.1) {
			assert.InDelta(t, 0.8, st.Volume, 1e-12, "the carry returns the stage to original scale")
			carried = true
		}
	}
	assert.True(t, carried, "expected an aspirate out of the staging vessel")

	// Back-transfer of the original total: 0.2+0.2+5+10.
	dispenses := sim.StepsOf(robot.OpDispense)
	final := dispenses[len(dispenses)-1]
	assert.Equal(t, "pcr", final.Location.Labware)
	assert.Equal(t, "B1", final.Location.Well)
	assert.InDelta(t, 15.4, final.Volume, 1e-12)
}

func TestMixRunPremixesOncePerBatch(t *testing.T) {
	blocks := []testutil.MixBlock{
		{
			Dest:    "A1",
			Names:   []string{"pA", layout.SalineName},
			Volumes: []string{"2", "5"},
			Sources: []string{"A1", "B1"},
		},
		{
			Dest:    "A2",
			Names:   []string{"pA", "pB", layout.SalineName},
			Volumes: []string{"3", "4", "5"},
			Sources: []string{"A1", "A2", "B1"},
		},
	}

	countPremixCycles := func(sim *robot.Simulator) int {
		n := 0
		for _, st := range sim.StepsOf(robot.OpAspirate) {
			if st.Volume == premixVolume {
				n++
			}
		}
		return n
	}

	params := testParams(2)
	params.Premix = true
	p := compileBlocks(t, params, blocks...)
	run, sim := newSimRun(t, p)
	require.NoError(t, run.Execute(context.Background()))
	assert.Equal(t, 2*premixCycles, countPremixCycles(sim),
		"a source shared by two mixes is premixed once per batch")

	// With one-mix batches the shared source is stirred again in batch two.
	params.BatchSize = 1
	p = compileBlocks(t, params, blocks...)
	run, sim = newSimRun(t, p)
	require.NoError(t, run.Execute(context.Background()))
	assert.Equal(t, 3*premixCycles, countPremixCycles(sim))
	assert.Equal(t, 3, run.Usage()[1].Used, "each premix takes a fresh 200-class tip")
}

func TestCompileMixRejectsOversizedMixCount(t *testing.T) {
	count := labware.Plate96.NumWells() + 1
	blocks := make([]testutil.MixBlock, count)
	for i := range blocks {
		blocks[i] = testutil.MixBlock{
			Dest:    "A1",
			Names:   []string{"pA", layout.SalineName},
			Volumes: []string{"5", "10"},
			Sources: []string{"A1", "B1"},
		}
	}

	_, err := CompileMix(layout.Table(testutil.LayoutRows(blocks...)), testDeck(), testParams(count))
	var layoutErr *layout.Error
	require.ErrorAs(t, err, &layoutErr)
	assert.Contains(t, err.Error(), "exceed the 96 wells")
}

func TestCompileMixVesselExhaustion(t *testing.T) {
	twoSmalls := func(dest string) testutil.MixBlock {
		return testutil.MixBlock{
			Dest:    dest,
			Names:   []string{"pA", "pB", layout.SalineName},
			Volumes: []string{"0.3", "0.4", "10"},
			Sources: []string{"A1", "A2", "B1"},
		}
	}

	params := testParams(2)
	params.SmallPool = []string{"C1"}
	params.FinalPool = []string{"D1"}

	_, err := CompileMix(layout.Table(testutil.LayoutRows(twoSmalls("A1"), twoSmalls("A2"))), testDeck(), params)
	var exhausted *plan.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "intermediate vessels", exhausted.Resource)
	assert.Contains(t, exhausted.Detail, "mix 2")
}

func TestCompileMixRejectsOversizedSalineDraw(t *testing.T) {
	block := testutil.MixBlock{
		Dest:    "A1",
		Names:   []string{"pA", layout.SalineName},
		Volumes: []string{"5", "250"},
		Sources: []string{"A1", "B1"},
	}

	_, err := CompileMix(layout.Table(testutil.LayoutRows(block)), testDeck(), testParams(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the 198 µL usable")
}

func TestCompileMixRejectsOversizedStrokes(t *testing.T) {
	t.Run("component", func(t *testing.T) {
		block := testutil.MixBlock{
			Dest:    "A1",
			Names:   []string{"pA", layout.SalineName},
			Volumes: []string{"250", "10"},
			Sources: []string{"A1", "B1"},
		}
		_, err := CompileMix(layout.Table(testutil.LayoutRows(block)), testDeck(), testParams(1))
		var layoutErr *layout.Error
		require.ErrorAs(t, err, &layoutErr)
		assert.Contains(t, err.Error(), `component "pA"`)
	})

	t.Run("staged total", func(t *testing.T) {
		block := testutil.MixBlock{
			Dest:    "A1",
			Names:   []string{"pA", "pB", layout.SalineName},
			Volumes: []string{"0.5", "120", "85"},
			Sources: []string{"A1", "A2", "B1"},
		}
		_, err := CompileMix(layout.Table(testutil.LayoutRows(block)), testDeck(), testParams(1))
		var layoutErr *layout.Error
		require.ErrorAs(t, err, &layoutErr)
		assert.Contains(t, err.Error(), "staged total")
	})
}

func TestMixRunHaltsWhenTipsRunOut(t *testing.T) {
	block := testutil.MixBlock{
		Dest:    "A1",
		Names:   []string{"pA", "pB", layout.SalineName},
		Volumes: []string{"5", "6", "0"},
		Sources: []string{"A1", "A2", "B1"},
	}
	p := compileBlocks(t, testParams(1), block)
	require.Empty(t, p.Saline, "a zero NaCl volume is not dispatched")

	sim := robot.NewSimulator()
	sim.RegisterTipRack("tips50", labware.Tip50)
	tips, err := plan.NewSequencer(plan.RackConfig{
		Class: labware.Tip50, Mount: robot.MountLeft, Labware: "tips50", StartTip: "H12",
	})
	require.NoError(t, err)

	run := NewMixRun(p, sim, tips)
	err = run.Execute(context.Background())

	var exhausted *plan.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "50 µL tips", exhausted.Resource)

	// The only tip moved one component; the failure paused the run with the
	// cause and nothing leaked.
	assert.Len(t, sim.StepsOf(robot.OpPickUpTip), 1)
	assert.Len(t, sim.StepsOf(robot.OpDropTip), 1)

	steps := sim.Steps()
	last := steps[len(steps)-1]
	assert.Equal(t, robot.OpPause, last.Op)
	assert.Contains(t, last.Message, "out of 50 µL tips")
}
