package robot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dyluth/flexprep/internal/labware"
)

var _ Controller = (*Gateway)(nil)

// Gateway drives the physical robot over its HTTP API. Commands execute
// synchronously inside a run session: the POST returns once the arm has
// finished the motion, so ordering falls out of the request sequence.
type Gateway struct {
	address string
	client  *http.Client
	runID   string
}

// Dial connects to the robot appliance and verifies it is reachable.
// No client-side timeout is set: individual commands (incubation delays,
// slow aspirates) legitimately take minutes, so cancellation is the
// caller's context's job.
func Dial(ctx context.Context, address string) (*Gateway, error) {
	g := &Gateway{
		address: strings.TrimRight(address, "/"),
		client:  &http.Client{},
	}

	if err := g.ping(ctx); err != nil {
		return nil, fmt.Errorf(`robot not reachable at %s: %w

Ensure the robot is ready:
  • The robot is powered on and connected to the network
  • robot.address in workcell.yml points at it (check with 'flexprep validate')
  • No other client holds an active run session`, g.address, err)
	}

	return g, nil
}

func (g *Gateway) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.address+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("invalid robot address: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// StartRun opens a run session on the robot. All subsequent commands
// execute inside it.
func (g *Gateway) StartRun(ctx context.Context, name string) error {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("failed to encode run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.address+"/v1/runs", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open run session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("robot refused to open a run session (HTTP %d): %s", resp.StatusCode, readErrorMessage(resp.Body))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("failed to decode run session response: %w", err)
	}
	if created.ID == "" {
		return fmt.Errorf("robot returned an empty run session id")
	}

	g.runID = created.ID
	return nil
}

// FinishRun closes the run session. Safe to call when no session is open.
func (g *Gateway) FinishRun(ctx context.Context) error {
	if g.runID == "" {
		return nil
	}
	url := fmt.Sprintf("%s/v1/runs/%s/finish", g.address, g.runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build finish request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to close run session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	g.runID = ""
	return nil
}

// exec posts one command step and waits for the robot to complete it.
func (g *Gateway) exec(ctx context.Context, step Step) error {
	if g.runID == "" {
		return fmt.Errorf("no open run session on the robot: StartRun must be called first")
	}

	payload, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", step.Op, err)
	}

	url := fmt.Sprintf("%s/v1/runs/%s/commands", g.address, g.runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s command: %w", step.Op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &HardwareError{Op: step.Op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HardwareError{Op: step.Op, Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// readErrorMessage extracts the robot's error field, falling back to the
// raw body when it is not JSON.
func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "no error details provided"
	}
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(body))
}

func (g *Gateway) PickUpTip(ctx context.Context, mount Mount, tip labware.Location) error {
	return g.exec(ctx, Step{Op: OpPickUpTip, Mount: mount, Location: &tip})
}

func (g *Gateway) DropTip(ctx context.Context, mount Mount) error {
	return g.exec(ctx, Step{Op: OpDropTip, Mount: mount})
}

func (g *Gateway) Aspirate(ctx context.Context, mount Mount, volume float64, from labware.Location) error {
	return g.exec(ctx, Step{Op: OpAspirate, Mount: mount, Volume: volume, Location: &from})
}

func (g *Gateway) Dispense(ctx context.Context, mount Mount, volume float64, to labware.Location) error {
	return g.exec(ctx, Step{Op: OpDispense, Mount: mount, Volume: volume, Location: &to})
}

func (g *Gateway) Mix(ctx context.Context, mount Mount, repetitions int, volume float64, at labware.Location) error {
	return g.exec(ctx, Step{Op: OpMix, Mount: mount, Repetitions: repetitions, Volume: volume, Location: &at})
}

func (g *Gateway) BlowOut(ctx context.Context, mount Mount, at *labware.Location) error {
	return g.exec(ctx, Step{Op: OpBlowOut, Mount: mount, Location: at})
}

func (g *Gateway) AirGap(ctx context.Context, mount Mount, volume float64) error {
	return g.exec(ctx, Step{Op: OpAirGap, Mount: mount, Volume: volume})
}

func (g *Gateway) SetFlowRate(ctx context.Context, mount Mount, aspirate, dispense float64) error {
	return g.exec(ctx, Step{Op: OpFlowRate, Mount: mount, AspirateRate: aspirate, DispenseRate: dispense})
}

func (g *Gateway) MoveLabware(ctx context.Context, labwareName, slot string) error {
	return g.exec(ctx, Step{Op: OpMoveLabware, Labware: labwareName, Slot: slot})
}

func (g *Gateway) OpenLabwareLatch(ctx context.Context, module string) error {
	return g.exec(ctx, Step{Op: OpOpenLatch, Labware: module})
}

func (g *Gateway) CloseLabwareLatch(ctx context.Context, module string) error {
	return g.exec(ctx, Step{Op: OpCloseLatch, Labware: module})
}

func (g *Gateway) Pause(ctx context.Context, message string) error {
	return g.exec(ctx, Step{Op: OpPause, Message: message})
}

func (g *Gateway) Comment(ctx context.Context, message string) error {
	return g.exec(ctx, Step{Op: OpComment, Message: message})
}

func (g *Gateway) Delay(ctx context.Context, d time.Duration) error {
	return g.exec(ctx, Step{Op: OpDelay, Duration: d})
}
