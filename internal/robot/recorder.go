package robot

import (
	"context"
	"sync"
	"time"

	"github.com/dyluth/flexprep/internal/labware"
)

var _ Controller = (*Recorder)(nil)

// StepSink receives every step a recorded controller completes, in order.
// Run journals attach here.
type StepSink func(ctx context.Context, step Step) error

// Recorder wraps a Controller and forwards each successfully executed step
// to a sink. A failing sink never interrupts the physical run: liquid beats
// telemetry. The first sink failure is reported once through onSinkError;
// later ones are dropped silently.
type Recorder struct {
	inner       Controller
	sink        StepSink
	onSinkError func(error)
	warnOnce    sync.Once
}

// NewRecorder wraps inner so every completed step reaches sink.
// onSinkError may be nil.
func NewRecorder(inner Controller, sink StepSink, onSinkError func(error)) *Recorder {
	return &Recorder{inner: inner, sink: sink, onSinkError: onSinkError}
}

func (r *Recorder) forward(ctx context.Context, step Step) {
	if err := r.sink(ctx, step); err != nil {
		r.warnOnce.Do(func() {
			if r.onSinkError != nil {
				r.onSinkError(err)
			}
		})
	}
}

// run executes the step on the inner controller and forwards it on success.
func (r *Recorder) run(ctx context.Context, step Step, execute func() error) error {
	if err := execute(); err != nil {
		return err
	}
	r.forward(ctx, step)
	return nil
}

func (r *Recorder) PickUpTip(ctx context.Context, mount Mount, tip labware.Location) error {
	return r.run(ctx, Step{Op: OpPickUpTip, Mount: mount, Location: &tip}, func() error {
		return r.inner.PickUpTip(ctx, mount, tip)
	})
}

func (r *Recorder) DropTip(ctx context.Context, mount Mount) error {
	return r.run(ctx, Step{Op: OpDropTip, Mount: mount}, func() error {
		return r.inner.DropTip(ctx, mount)
	})
}

func (r *Recorder) Aspirate(ctx context.Context, mount Mount, volume float64, from labware.Location) error {
	return r.run(ctx, Step{Op: OpAspirate, Mount: mount, Volume: volume, Location: &from}, func() error {
		return r.inner.Aspirate(ctx, mount, volume, from)
	})
}

func (r *Recorder) Dispense(ctx context.Context, mount Mount, volume float64, to labware.Location) error {
	return r.run(ctx, Step{Op: OpDispense, Mount: mount, Volume: volume, Location: &to}, func() error {
		return r.inner.Dispense(ctx, mount, volume, to)
	})
}

func (r *Recorder) Mix(ctx context.Context, mount Mount, repetitions int, volume float64, at labware.Location) error {
	return r.run(ctx, Step{Op: OpMix, Mount: mount, Repetitions: repetitions, Volume: volume, Location: &at}, func() error {
		return r.inner.Mix(ctx, mount, repetitions, volume, at)
	})
}

func (r *Recorder) BlowOut(ctx context.Context, mount Mount, at *labware.Location) error {
	return r.run(ctx, Step{Op: OpBlowOut, Mount: mount, Location: at}, func() error {
		return r.inner.BlowOut(ctx, mount, at)
	})
}

func (r *Recorder) AirGap(ctx context.Context, mount Mount, volume float64) error {
	return r.run(ctx, Step{Op: OpAirGap, Mount: mount, Volume: volume}, func() error {
		return r.inner.AirGap(ctx, mount, volume)
	})
}

func (r *Recorder) SetFlowRate(ctx context.Context, mount Mount, aspirate, dispense float64) error {
	return r.run(ctx, Step{Op: OpFlowRate, Mount: mount, AspirateRate: aspirate, DispenseRate: dispense}, func() error {
		return r.inner.SetFlowRate(ctx, mount, aspirate, dispense)
	})
}

func (r *Recorder) MoveLabware(ctx context.Context, labwareName, slot string) error {
	return r.run(ctx, Step{Op: OpMoveLabware, Labware: labwareName, Slot: slot}, func() error {
		return r.inner.MoveLabware(ctx, labwareName, slot)
	})
}

func (r *Recorder) OpenLabwareLatch(ctx context.Context, module string) error {
	return r.run(ctx, Step{Op: OpOpenLatch, Labware: module}, func() error {
		return r.inner.OpenLabwareLatch(ctx, module)
	})
}

func (r *Recorder) CloseLabwareLatch(ctx context.Context, module string) error {
	return r.run(ctx, Step{Op: OpCloseLatch, Labware: module}, func() error {
		return r.inner.CloseLabwareLatch(ctx, module)
	})
}

func (r *Recorder) Pause(ctx context.Context, message string) error {
	return r.run(ctx, Step{Op: OpPause, Message: message}, func() error {
		return r.inner.Pause(ctx, message)
	})
}

func (r *Recorder) Comment(ctx context.Context, message string) error {
	return r.run(ctx, Step{Op: OpComment, Message: message}, func() error {
		return r.inner.Comment(ctx, message)
	})
}

func (r *Recorder) Delay(ctx context.Context, d time.Duration) error {
	return r.run(ctx, Step{Op: OpDelay, Duration: d}, func() error {
		return r.inner.Delay(ctx, d)
	})
}
