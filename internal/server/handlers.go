package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/hbootdbg/internal/arm"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/rsp"
)

// stopReply is sent whenever the target is reported stopped: SIGTRAP.
var stopReply = []byte("S05")

// ArgumentError reports a request whose arguments cannot be parsed.
type ArgumentError struct {
	Command rsp.CommandID
	Arg     string
	Err     error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: bad argument %q: %v", e.Command, e.Arg, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// registerHandlers fills the dispatcher. Later entries take precedence
// when patterns overlap.
func (s *Session) registerHandlers() {
	routes := []struct {
		id      rsp.CommandID
		handler rsp.Handler
	}{
		{rsp.CmdSupported, s.handleSupported},
		{rsp.CmdAttached, s.handleAttached},
		{rsp.CmdCurrentThread, s.handleCurrentThread},
		{rsp.CmdSetThread, s.handleSetThread},
		{rsp.CmdStopReason, s.handleStopReason},
		{rsp.CmdReadRegisters, s.handleReadRegisters},
		{rsp.CmdReadRegister, s.handleReadRegister},
		{rsp.CmdContinue, s.handleContinue},
		{rsp.CmdStep, s.handleStep},
		{rsp.CmdReadMemory, s.handleReadMemory},
		{rsp.CmdWriteMemory, s.handleWriteMemory},
		{rsp.CmdInsertBreakpoint, s.handleInsertBreakpoint},
		{rsp.CmdRemoveBreakpoint, s.handleRemoveBreakpoint},
		{rsp.CmdDetach, s.handleDetach},
	}
	for _, r := range routes {
		s.dispatcher.Handle(r.id, r.handler)
	}
}

func parseHex(req *rsp.Request, arg []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(arg), 16, 32)
	if err != nil {
		return 0, &ArgumentError{Command: req.ID, Arg: string(arg), Err: err}
	}
	return uint32(v), nil
}

func (s *Session) handleSupported(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	return [][]byte{fmt.Appendf(nil, "PacketSize=%d", s.packetSize)}, nil
}

func (s *Session) handleAttached(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	return [][]byte{[]byte("1")}, nil
}

func (s *Session) handleCurrentThread(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	return [][]byte{[]byte("QC0")}, nil
}

func (s *Session) handleSetThread(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	if string(req.Group(0)) == "c" {
		return [][]byte{[]byte("OK")}, nil
	}
	return nil, nil
}

func (s *Session) handleStopReason(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	return [][]byte{stopReply}, nil
}

func (s *Session) handleReadRegisters(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	regs, err := s.ctrl.Registers(ctx)
	if err != nil {
		return nil, err
	}
	s.regs = regs
	return [][]byte{regs.ClientFormat()}, nil
}

func (s *Session) currentRegisters(ctx context.Context) (*arm.RegisterFile, error) {
	if s.regs != nil {
		return s.regs, nil
	}
	regs, err := s.ctrl.Registers(ctx)
	if err != nil {
		return nil, err
	}
	s.regs = regs
	return regs, nil
}

// handleReadRegister answers from the cached context. An index outside the
// register file is fatal for the session.
func (s *Session) handleReadRegister(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	index, err := strconv.ParseInt(string(req.Group(0)), 16, 32)
	if err != nil {
		return nil, &ArgumentError{Command: req.ID, Arg: string(req.Group(0)), Err: err}
	}
	regs, err := s.currentRegisters(ctx)
	if err != nil {
		return nil, err
	}
	word, err := regs.ClientWord(int(index))
	if err != nil {
		return nil, err
	}
	return [][]byte{word}, nil
}

func (s *Session) handleContinue(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	regs, err := s.ctrl.Continue(ctx)
	return s.stopped(regs, err)
}

func (s *Session) handleStep(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	current, err := s.currentRegisters(ctx)
	if err != nil {
		return nil, err
	}
	regs, err := s.ctrl.Step(ctx, current)
	return s.stopped(regs, err)
}

// stopped reports a stop to the client once the target is no longer
// running. Agent errors seen while waiting do not change the reply.
func (s *Session) stopped(regs *arm.RegisterFile, err error) ([][]byte, error) {
	if err != nil {
		if _, ok := device.CodeOf(err); !ok {
			return nil, err
		}
		s.logger.Warn("Target stopped with an error", zap.Error(err))
	}
	s.regs = regs
	return [][]byte{stopReply}, nil
}

func (s *Session) handleReadMemory(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	address, err := parseHex(req, req.Group(0))
	if err != nil {
		return nil, err
	}
	size, err := parseHex(req, req.Arg(0))
	if err != nil {
		return nil, err
	}
	data, err := s.ctrl.ReadMemory(ctx, address, size)
	if err != nil {
		return nil, err
	}
	return [][]byte{hexBytes(data)}, nil
}

func (s *Session) handleWriteMemory(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	address, err := parseHex(req, req.Group(0))
	if err != nil {
		return nil, err
	}
	size, err := parseHex(req, req.Arg(0))
	if err != nil {
		return nil, err
	}
	value, err := parseHex(req, req.Arg(1))
	if err != nil {
		return nil, err
	}
	data, err := s.ctrl.WriteMemory(ctx, address, size, value)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{[]byte("OK")}, nil
	}
	return [][]byte{hexBytes(data)}, nil
}

func (s *Session) handleInsertBreakpoint(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	address, err := parseHex(req, req.Arg(0))
	if err != nil {
		return nil, err
	}
	if err := s.ctrl.InsertBreakpoint(ctx, address, device.BreakpointNormal); err != nil {
		return nil, err
	}
	return [][]byte{[]byte("OK")}, nil
}

func (s *Session) handleRemoveBreakpoint(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	address, err := parseHex(req, req.Arg(0))
	if err != nil {
		return nil, err
	}
	if err := s.ctrl.RemoveBreakpoint(ctx, address, device.BreakpointNormal); err != nil {
		return nil, err
	}
	return [][]byte{[]byte("OK")}, nil
}

// handleDetach releases the target and ends the session after the reply.
func (s *Session) handleDetach(ctx context.Context, req *rsp.Request) ([][]byte, error) {
	err := s.ctrl.Detach(ctx)
	if err != nil {
		var cmdErr *device.CommandError
		if !errors.As(err, &cmdErr) {
			return nil, err
		}
		s.logger.Warn("Device refused detach", zap.Error(err))
	}
	s.detached = true
	return [][]byte{[]byte("OK")}, nil
}

func hexBytes(data []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(data)))
	hex.Encode(out, data)
	return out
}
