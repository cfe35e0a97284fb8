package debugger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/muurk/hbootdbg/internal/arm"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/device/devicetest"
)

func fastConfig() Config {
	return Config{ContinuePoll: time.Millisecond, StepPoll: time.Millisecond}
}

func newAgentController(t *testing.T, cfg Config) (*Controller, *devicetest.Agent) {
	t.Helper()
	agent := devicetest.NewAgent()
	link := device.NewLink(agent.Dialer(), device.LinkConfig{FastbootMode: true}, zap.NewNop())
	t.Cleanup(func() { _ = link.Close() })
	return NewController(link, cfg, zap.NewNop()), agent
}

// replayDevice answers get_registers from a fixed list of error codes.
type replayDevice struct {
	polls    []device.ErrorKind
	sent     []device.Command
	pollSeen int
}

func (d *replayDevice) Exchange(ctx context.Context, cmd device.Command) (*device.Reply, error) {
	d.sent = append(d.sent, cmd)
	if cmd.Kind != device.KindGetRegisters {
		return &device.Reply{Kind: cmd.Kind}, nil
	}
	code := d.polls[d.pollSeen]
	d.pollSeen++
	reply := &device.Reply{Kind: cmd.Kind, Error: code}
	if code == device.ErrorSuccess {
		reply.Data = make([]byte, arm.ContextSize)
	}
	return reply, nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ContinuePoll != 100*time.Millisecond {
		t.Errorf("ContinuePoll = %s, want 100ms", cfg.ContinuePoll)
	}
	if cfg.StepPoll != 50*time.Millisecond {
		t.Errorf("StepPoll = %s, want 50ms", cfg.StepPoll)
	}
	if cfg.FirstRun {
		t.Error("FirstRun should default to false")
	}
}

func TestContinuePollsUntilStopped(t *testing.T) {
	tests := []struct {
		name      string
		polls     []device.ErrorKind
		wantPolls int
		wantErr   bool
	}{
		{
			name:      "stops on success",
			polls:     []device.ErrorKind{device.ErrorNoBreakpoint, device.ErrorNoBreakpoint, device.ErrorSuccess},
			wantPolls: 3,
		},
		{
			name:      "first poll already stopped",
			polls:     []device.ErrorKind{device.ErrorSuccess},
			wantPolls: 1,
		},
		{
			name:      "any other error ends the wait",
			polls:     []device.ErrorKind{device.ErrorNoBreakpoint, device.ErrorUnknownCmd, device.ErrorSuccess},
			wantPolls: 2,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &replayDevice{polls: tt.polls}
			c := NewController(dev, fastConfig(), zap.NewNop())

			regs, err := c.Continue(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Continue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && regs == nil {
				t.Error("Continue() returned no registers")
			}
			if dev.pollSeen != tt.wantPolls {
				t.Errorf("polled %d times, want %d", dev.pollSeen, tt.wantPolls)
			}
			if dev.sent[0].Kind != device.KindBreakpointContinue {
				t.Errorf("first command = %v, want breakpoint_continue", dev.sent[0].Kind)
			}
			if c.State() != StateStopped {
				t.Errorf("state = %v, want stopped", c.State())
			}
		})
	}
}

func TestContinueCancelled(t *testing.T) {
	polls := make([]device.ErrorKind, 10000)
	for i := range polls {
		polls[i] = device.ErrorNoBreakpoint
	}
	dev := &replayDevice{polls: polls}
	c := NewController(dev, Config{ContinuePoll: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Continue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Continue() error = %v, want context.DeadlineExceeded", err)
	}
	if c.State() != StateRunning {
		t.Errorf("state = %v, want running", c.State())
	}
}

func TestStepAddress(t *testing.T) {
	if got := StepAddress(0x8D000100); got != 0x8D000104 {
		t.Errorf("StepAddress(0x8D000100) = 0x%08x, want 0x8D000104", got)
	}
}

func TestStepInsertsAndRemovesTemporaryBreakpoint(t *testing.T) {
	c, agent := newAgentController(t, fastConfig())
	agent.RunningPolls = 2
	agent.GPR[arm.PC] = 0x8D000104

	current := &arm.RegisterFile{}
	current.GPR[arm.PC] = 0x8D000100

	regs, err := c.Step(context.Background(), current)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if regs.PC() != 0x8D000104 {
		t.Errorf("pc after step = 0x%08x, want 0x8D000104", regs.PC())
	}

	want := []device.Kind{
		device.KindInsertBreakpoint,
		device.KindBreakpointContinue,
		device.KindGetRegisters,
		device.KindGetRegisters,
		device.KindGetRegisters,
		device.KindRemoveBreakpoint,
	}
	if diff := cmp.Diff(want, agent.Kinds()); diff != "" {
		t.Errorf("command sequence mismatch (-want +got):\n%s", diff)
	}
	if agent.Received[0].Address != 0x8D000104 {
		t.Errorf("step breakpoint at 0x%08x, want 0x8D000104", agent.Received[0].Address)
	}
	if len(agent.Breakpoints()) != 0 {
		t.Errorf("breakpoints left behind: %v", agent.Breakpoints())
	}
}

func TestStepKeepsExistingBreakpoint(t *testing.T) {
	c, agent := newAgentController(t, fastConfig())
	if err := c.InsertBreakpoint(context.Background(), 0x104, device.BreakpointNormal); err != nil {
		t.Fatalf("InsertBreakpoint() error = %v", err)
	}

	current := &arm.RegisterFile{}
	current.GPR[arm.PC] = 0x100
	if _, err := c.Step(context.Background(), current); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if _, ok := agent.Breakpoints()[0x104]; !ok {
		t.Error("user breakpoint at 0x104 was removed by step")
	}
}

func TestStepRemovesBreakpointWhenCancelled(t *testing.T) {
	c, agent := newAgentController(t, Config{ContinuePoll: time.Millisecond, StepPoll: 5 * time.Millisecond})
	agent.RunningPolls = 1 << 30

	current := &arm.RegisterFile{}
	current.GPR[arm.PC] = 0x200

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Step(ctx, current)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Step() error = %v, want context.DeadlineExceeded", err)
	}
	if len(agent.Breakpoints()) != 0 {
		t.Errorf("breakpoints left behind: %v", agent.Breakpoints())
	}
}

func TestStepWithoutRegisters(t *testing.T) {
	c, _ := newAgentController(t, fastConfig())
	if _, err := c.Step(context.Background(), nil); err == nil {
		t.Error("Step(nil) should fail")
	}
}

func TestBreakpointErrorsAreReported(t *testing.T) {
	c, _ := newAgentController(t, fastConfig())
	ctx := context.Background()

	if err := c.InsertBreakpoint(ctx, 0x40, device.BreakpointTrace); err != nil {
		t.Fatalf("InsertBreakpoint() error = %v", err)
	}

	err := c.InsertBreakpoint(ctx, 0x40, device.BreakpointTrace)
	if code, ok := device.CodeOf(err); !ok || code != device.ErrorBreakpointAlreadyExists {
		t.Errorf("second insert error = %v, want BREAKPOINT_ALREADY_EXISTS", err)
	}

	if err := c.RemoveBreakpoint(ctx, 0x40, device.BreakpointTrace); err != nil {
		t.Fatalf("RemoveBreakpoint() error = %v", err)
	}

	err = c.RemoveBreakpoint(ctx, 0x40, device.BreakpointTrace)
	if code, ok := device.CodeOf(err); !ok || code != device.ErrorNoBreakpoint {
		t.Errorf("second remove error = %v, want NO_BREAKPOINT", err)
	}
}

func TestAttachFirstRunInjectsTrap(t *testing.T) {
	cfg := fastConfig()
	cfg.FirstRun = true
	c, agent := newAgentController(t, cfg)

	if err := c.Attach(context.Background()); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	want := []device.Kind{device.KindAttach, device.KindBreakpoint}
	if diff := cmp.Diff(want, agent.Kinds()); diff != "" {
		t.Errorf("command sequence mismatch (-want +got):\n%s", diff)
	}
	if c.State() != StateStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
}

func TestAttachFailure(t *testing.T) {
	c, agent := newAgentController(t, fastConfig())
	agent.Fail[device.KindAttach] = device.ErrorNoMemoryAvailable

	err := c.Attach(context.Background())
	if code, ok := device.CodeOf(err); !ok || code != device.ErrorNoMemoryAvailable {
		t.Errorf("Attach() error = %v, want NO_MEMORY_AVAILABLE", err)
	}
	if c.State() != StateDetached {
		t.Errorf("state = %v, want detached", c.State())
	}
}

func TestDetachIsTerminal(t *testing.T) {
	c, _ := newAgentController(t, fastConfig())
	ctx := context.Background()

	if err := c.Attach(ctx); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := c.Detach(ctx); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	if _, err := c.Continue(ctx); !errors.Is(err, ErrDetached) {
		t.Errorf("Continue() after detach error = %v, want ErrDetached", err)
	}
	if err := c.InsertBreakpoint(ctx, 0, device.BreakpointNormal); !errors.Is(err, ErrDetached) {
		t.Errorf("InsertBreakpoint() after detach error = %v, want ErrDetached", err)
	}
	if err := c.Detach(ctx); !errors.Is(err, ErrDetached) {
		t.Errorf("second Detach() error = %v, want ErrDetached", err)
	}
}

func TestMemoryAccess(t *testing.T) {
	ctrl, agent := newAgentController(t, fastConfig())
	ctx := context.Background()

	if _, err := ctrl.WriteMemory(ctx, 0x8D000000, 4, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}
	got, err := ctrl.ReadMemory(ctx, 0x8D000000, 4)
	if err != nil {
		t.Fatalf("ReadMemory() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0xDE, 0xAD, 0xBE, 0xEF}, got); diff != "" {
		t.Errorf("ReadMemory() mismatch (-want +got):\n%s", diff)
	}

	agent.Fail[device.KindRead] = device.ErrorInvalidMemoryAccess
	_, err = ctrl.ReadMemory(ctx, 0, 4)
	if code, ok := device.CodeOf(err); !ok || code != device.ErrorInvalidMemoryAccess {
		t.Errorf("ReadMemory() error = %v, want INVALID_MEMORY_ACCESS", err)
	}
}

func TestShortRegisterContextIsMalformed(t *testing.T) {
	ctrl, agent := newAgentController(t, fastConfig())
	agent.ShortContext = 8

	for name, call := range map[string]func() (*arm.RegisterFile, error){
		"registers": func() (*arm.RegisterFile, error) { return ctrl.Registers(context.Background()) },
		"continue":  func() (*arm.RegisterFile, error) { return ctrl.Continue(context.Background()) },
	} {
		regs, err := call()
		if regs != nil {
			t.Errorf("%s: got registers from a short context", name)
		}
		if code, ok := device.CodeOf(err); !ok || code != device.ErrorMalformedCmd {
			t.Errorf("%s: error = %v, want MALFORMED_CMD", name, err)
		}
	}
}
