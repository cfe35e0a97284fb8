package debugger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/hbootdbg/internal/arm"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/logging"
)

// ErrDetached is returned for any operation after Detach.
var ErrDetached = errors.New("debugger detached from device")

// State is the execution state as far as the bridge knows it.
type State int

const (
	StateDetached State = iota
	StateAttached
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttached:
		return "attached"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Device is the request/reply primitive the controller needs. *device.Link
// implements it.
type Device interface {
	Exchange(ctx context.Context, cmd device.Command) (*device.Reply, error)
}

// Config holds the controller configuration.
type Config struct {
	// FirstRun makes Attach inject a breakpoint trap so the target stops
	// before the debugger connects.
	FirstRun bool

	// ContinuePoll is the get_registers interval after a continue.
	// Default: 100ms
	ContinuePoll time.Duration

	// StepPoll is the get_registers interval after a step.
	// Default: 50ms
	StepPoll time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ContinuePoll: 100 * time.Millisecond,
		StepPoll:     50 * time.Millisecond,
	}
}

// Controller implements attach, continue, step and breakpoints on top of a
// Device. Breakpoints are not cached: the agent is the source of truth.
type Controller struct {
	dev    Device
	config Config
	logger *zap.Logger
	state  State
	// detached is terminal; state alone cannot tell it apart from the
	// initial detached state.
	detached bool
}

// NewController creates a controller in the detached state.
func NewController(dev Device, config Config, logger *zap.Logger) *Controller {
	defaults := DefaultConfig()
	if config.ContinuePoll <= 0 {
		config.ContinuePoll = defaults.ContinuePoll
	}
	if config.StepPoll <= 0 {
		config.StepPoll = defaults.StepPoll
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Controller{
		dev:    dev,
		config: config,
		logger: logger,
		state:  StateDetached,
	}
}

// State returns the current execution state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) send(ctx context.Context, cmd device.Command) (*device.Reply, error) {
	if c.detached {
		return nil, ErrDetached
	}
	return c.dev.Exchange(ctx, cmd)
}

// Attach installs the agent's exception handlers. With FirstRun set it also
// traps the target so that it is stopped when the debugger connects.
func (c *Controller) Attach(ctx context.Context) error {
	reply, err := c.send(ctx, device.AttachCommand())
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if err := reply.Err(); err != nil {
		return err
	}
	c.state = StateAttached
	c.logger.Info("Attached to device")

	if c.config.FirstRun {
		reply, err := c.send(ctx, device.BreakpointCommand())
		if err != nil {
			return fmt.Errorf("inject breakpoint: %w", err)
		}
		if err := reply.Err(); err != nil {
			return err
		}
		c.state = StateStopped
		c.logger.Info("Breakpoint trap injected")
	}
	return nil
}

// Continue resumes the target and blocks until it stops again.
func (c *Controller) Continue(ctx context.Context) (*arm.RegisterFile, error) {
	return c.resume(ctx, c.config.ContinuePoll)
}

// Step runs one instruction by planting a temporary breakpoint after the
// current pc. The temporary breakpoint is removed whatever the outcome of
// the wait, unless it already existed before the step.
func (c *Controller) Step(ctx context.Context, current *arm.RegisterFile) (*arm.RegisterFile, error) {
	if c.detached {
		return nil, ErrDetached
	}
	if current == nil {
		return nil, fmt.Errorf("step: no register context, read registers first")
	}

	target := StepAddress(current.PC())
	c.logger.Debug("Inserting step breakpoint", zap.String("address", fmt.Sprintf("0x%08x", target)))

	reply, err := c.send(ctx, device.InsertBreakpointCommand(target, device.BreakpointNormal))
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	owned := true
	switch reply.Error {
	case device.ErrorSuccess:
	case device.ErrorBreakpointAlreadyExists:
		owned = false
	default:
		return nil, reply.Err()
	}

	regs, stepErr := c.resume(ctx, c.config.StepPoll)

	if owned {
		c.logger.Debug("Removing step breakpoint", zap.String("address", fmt.Sprintf("0x%08x", target)))
		// The step may have been cancelled; the removal must still reach
		// the device.
		reply, err := c.send(context.WithoutCancel(ctx), device.RemoveBreakpointCommand(target, device.BreakpointNormal))
		if err != nil && stepErr == nil {
			return regs, fmt.Errorf("remove step breakpoint: %w", err)
		}
		if err == nil && reply.Error != device.ErrorSuccess {
			c.logger.Warn("Step breakpoint removal failed",
				zap.String("address", fmt.Sprintf("0x%08x", target)),
				zap.Stringer("error", reply.Error),
			)
		}
	}

	return regs, stepErr
}

// StepAddress is where the temporary step breakpoint goes. Instructions are
// assumed to be four bytes wide.
func StepAddress(pc uint32) uint32 {
	return pc + 4
}

func (c *Controller) resume(ctx context.Context, interval time.Duration) (*arm.RegisterFile, error) {
	reply, err := c.send(ctx, device.BreakpointContinueCommand())
	if err != nil {
		return nil, fmt.Errorf("continue: %w", err)
	}
	if reply.Error != device.ErrorSuccess {
		// The agent refuses to continue when it is not sitting on a
		// breakpoint. Polling still tells us where the target is.
		c.logger.Warn("Device refused continue", zap.Stringer("error", reply.Error))
	}
	c.state = StateRunning

	return c.waitForStop(ctx, interval)
}

// waitForStop polls get_registers until the reply carries anything other
// than NO_BREAKPOINT.
func (c *Controller) waitForStop(ctx context.Context, interval time.Duration) (*arm.RegisterFile, error) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	polls := 0
	for {
		polls++
		reply, err := c.send(ctx, device.GetRegistersCommand())
		if err != nil {
			var malformed *device.MalformedError
			if !errors.As(err, &malformed) {
				return nil, err
			}
			c.logger.Debug("Unreadable poll reply, still waiting", zap.Error(err))
		} else if reply.Error != device.ErrorNoBreakpoint {
			c.state = StateStopped
			c.logger.Info("Target stopped", zap.Int("polls", polls))
			if err := reply.Err(); err != nil {
				return nil, err
			}
			return loadContext(reply.Data)
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Registers fetches the current context without resuming the target.
func (c *Controller) Registers(ctx context.Context) (*arm.RegisterFile, error) {
	reply, err := c.send(ctx, device.GetRegistersCommand())
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return loadContext(reply.Data)
}

// loadContext decodes a register reply. A short context is reported as
// MALFORMED_CMD like any other undersized agent buffer.
func loadContext(data []byte) (*arm.RegisterFile, error) {
	regs, err := arm.Load(data)
	var short *arm.ShortContextError
	if errors.As(err, &short) {
		return nil, &device.MalformedError{Kind: device.KindGetRegisters, Size: short.Size, Want: arm.ContextSize}
	}
	return regs, err
}

// InsertBreakpoint plants a breakpoint. BREAKPOINT_ALREADY_EXISTS comes back
// as a *device.CommandError.
func (c *Controller) InsertBreakpoint(ctx context.Context, address uint32, kind device.BreakpointKind) error {
	reply, err := c.send(ctx, device.InsertBreakpointCommand(address, kind))
	if err != nil {
		return err
	}
	return reply.Err()
}

// RemoveBreakpoint removes a breakpoint. NO_BREAKPOINT comes back as a
// *device.CommandError.
func (c *Controller) RemoveBreakpoint(ctx context.Context, address uint32, kind device.BreakpointKind) error {
	reply, err := c.send(ctx, device.RemoveBreakpointCommand(address, kind))
	if err != nil {
		return err
	}
	return reply.Err()
}

// Detach releases the target. The controller is unusable afterwards.
func (c *Controller) Detach(ctx context.Context) error {
	reply, err := c.send(ctx, device.DetachCommand())
	if err != nil {
		return err
	}
	c.detached = true
	c.state = StateDetached
	c.logger.Info("Detached from device")
	return reply.Err()
}

// ReadMemory reads size bytes at address.
func (c *Controller) ReadMemory(ctx context.Context, address, size uint32) ([]byte, error) {
	reply, err := c.send(ctx, device.ReadCommand(address, size))
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// WriteMemory stores value at address. The agent writes a single word and
// echoes whatever data it attaches to the reply.
func (c *Controller) WriteMemory(ctx context.Context, address, size, value uint32) ([]byte, error) {
	reply, err := c.send(ctx, device.WriteCommand(address, size, value))
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Data, nil
}
