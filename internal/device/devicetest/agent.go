// Package devicetest provides an in-memory stand-in for the bootloader debug
// agent, for tests that drive a device.Link.
package devicetest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/transport"
)

// ContextSize is the size of the register block the agent sends back for
// get_registers: cpsr followed by r0..r15.
const ContextSize = 4 + 16*4

// Agent emulates the agent behind the fastboot "oem" or hboot "keytest"
// channel. It implements transport.Transport.
type Agent struct {
	mu sync.Mutex

	// Interactive echoes the command line and appends the shell prompt,
	// like the hboot shell does.
	Interactive bool

	// Memory backs read and write commands, keyed by byte address.
	Memory map[uint32]byte

	// CPSR and GPR are returned by get_registers once stopped.
	CPSR uint32
	GPR  [16]uint32

	// RunningPolls is the number of get_registers polls answered with
	// NO_BREAKPOINT after each breakpoint_continue.
	RunningPolls int

	// ShortContext, when non-zero, cuts the get_registers context down to
	// that many bytes.
	ShortContext int

	// Fail forces an error code for the given command kind.
	Fail map[device.Kind]device.ErrorKind

	// Received records every decoded request in order.
	Received []device.Command

	breakpoints map[uint32]device.BreakpointKind
	pollsLeft   int
	attached    bool
	pending     []byte
	closed      bool
}

// NewAgent returns a stopped agent with empty memory.
func NewAgent() *Agent {
	return &Agent{
		Memory:      make(map[uint32]byte),
		Fail:        make(map[device.Kind]device.ErrorKind),
		breakpoints: make(map[uint32]device.BreakpointKind),
	}
}

// Dialer returns a transport.Dialer handing out this agent.
func (a *Agent) Dialer() transport.Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		a.mu.Lock()
		a.closed = false
		a.mu.Unlock()
		return a, nil
	}
}

// Breakpoints returns a copy of the breakpoints currently set.
func (a *Agent) Breakpoints() map[uint32]device.BreakpointKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint32]device.BreakpointKind, len(a.breakpoints))
	for k, v := range a.breakpoints {
		out[k] = v
	}
	return out
}

// Kinds returns the kinds of the received commands in order.
func (a *Agent) Kinds() []device.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]device.Kind, len(a.Received))
	for i, c := range a.Received {
		kinds[i] = c.Kind
	}
	return kinds
}

// Send decodes one enveloped command and queues the reply.
func (a *Agent) Send(p []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return io.ErrClosedPipe
	}

	line := bytes.TrimSuffix(p, []byte("\n"))
	var encoded []byte
	switch {
	case bytes.HasPrefix(line, []byte("oem ")):
		encoded = line[len("oem "):]
	case bytes.HasPrefix(line, []byte("keytest ")):
		encoded = line[len("keytest "):]
	default:
		return fmt.Errorf("devicetest: unexpected envelope %q", p)
	}

	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return fmt.Errorf("devicetest: bad base64: %w", err)
	}

	var reply []byte
	cmd, err := device.UnpackCommand(raw)
	if err != nil {
		reply = []byte{raw[0], byte(device.ErrorMalformedCmd)}
	} else {
		a.Received = append(a.Received, cmd)
		reply = a.handle(cmd)
	}

	if a.Interactive {
		var b bytes.Buffer
		b.Write(line)
		b.WriteString("\r\n")
		b.Write(reply)
		b.WriteString("\r\nhboot>")
		reply = b.Bytes()
	}
	a.pending = append(a.pending, reply...)
	return nil
}

func (a *Agent) handle(cmd device.Command) []byte {
	status := func(code device.ErrorKind) []byte {
		return []byte{byte(cmd.Kind), byte(code)}
	}

	if code, ok := a.Fail[cmd.Kind]; ok {
		return status(code)
	}

	switch cmd.Kind {
	case device.KindAttach:
		a.attached = true
		return status(device.ErrorSuccess)

	case device.KindDetach:
		a.attached = false
		return status(device.ErrorSuccess)

	case device.KindRead:
		out := status(device.ErrorSuccess)
		for i := uint32(0); i < cmd.Size; i++ {
			out = append(out, a.Memory[cmd.Address+i])
		}
		return out

	case device.KindWrite:
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], cmd.Data)
		for i := uint32(0); i < cmd.Size && i < 4; i++ {
			a.Memory[cmd.Address+i] = word[i]
		}
		return status(device.ErrorSuccess)

	case device.KindInsertBreakpoint:
		if _, exists := a.breakpoints[cmd.Address]; exists {
			return status(device.ErrorBreakpointAlreadyExists)
		}
		a.breakpoints[cmd.Address] = cmd.Breakpoint
		return status(device.ErrorSuccess)

	case device.KindRemoveBreakpoint:
		if _, exists := a.breakpoints[cmd.Address]; !exists {
			return status(device.ErrorNoBreakpoint)
		}
		delete(a.breakpoints, cmd.Address)
		return status(device.ErrorSuccess)

	case device.KindBreakpointContinue:
		a.pollsLeft = a.RunningPolls
		return status(device.ErrorSuccess)

	case device.KindGetRegisters:
		if a.pollsLeft > 0 {
			a.pollsLeft--
			return status(device.ErrorNoBreakpoint)
		}
		out := status(device.ErrorSuccess)
		var ctx [ContextSize]byte
		binary.BigEndian.PutUint32(ctx[0:], a.CPSR)
		for i, r := range a.GPR {
			binary.LittleEndian.PutUint32(ctx[4+4*i:], r)
		}
		if a.ShortContext > 0 && a.ShortContext < ContextSize {
			return append(out, ctx[:a.ShortContext]...)
		}
		return append(out, ctx[:]...)

	case device.KindBreakpoint, device.KindCall, device.KindFlashlight, device.KindFastbootReboot:
		return status(device.ErrorSuccess)
	}

	return status(device.ErrorUnknownCmd)
}

// Receive hands out the queued reply, then an empty read to mark its end.
func (a *Agent) Receive(max int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, io.EOF
	}
	n := min(max, len(a.pending))
	out := a.pending[:n:n]
	a.pending = a.pending[n:]
	return out, nil
}

// Close marks the transport closed. Dialing again reopens it.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.pending = nil
	return nil
}
