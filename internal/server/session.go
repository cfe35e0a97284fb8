package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/muurk/hbootdbg/internal/arm"
	"github.com/muurk/hbootdbg/internal/debugger"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/logging"
	"github.com/muurk/hbootdbg/internal/rsp"
	"github.com/muurk/hbootdbg/internal/transport"
)

// ErrSessionClosed is returned by reads once the client has gone away.
var ErrSessionClosed = errors.New("debugger closed the connection")

// DefaultPacketSize is advertised in the qSupported reply.
const DefaultPacketSize = 1024

// Session serves one debugger client. It owns the controller, and through
// it the device link, for its whole lifetime.
type Session struct {
	conn       transport.Transport
	ctrl       *debugger.Controller
	dispatcher *rsp.Dispatcher
	packetSize int
	logger     *zap.Logger

	// regs is the last register context read from the agent. Step needs
	// it for the current pc.
	regs     *arm.RegisterFile
	detached bool
}

// NewSession creates a session answering conn with ctrl.
func NewSession(conn transport.Transport, ctrl *debugger.Controller, packetSize int, logger *zap.Logger) *Session {
	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	s := &Session{
		conn:       conn,
		ctrl:       ctrl,
		dispatcher: rsp.NewDispatcher(),
		packetSize: packetSize,
		logger:     logger,
	}
	s.registerHandlers()
	return s
}

// Run reads and answers packets until the client disconnects, detaches or
// ctx is cancelled. A client disconnect is not an error.
func (s *Session) Run(ctx context.Context) error {
	for !s.detached {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := s.readByte()
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				s.logger.Info("Debugger disconnected")
				return nil
			}
			return fmt.Errorf("read from debugger: %w", err)
		}

		switch b {
		case rsp.PacketStart:
			if err := s.handlePacket(ctx); err != nil {
				if errors.Is(err, ErrSessionClosed) {
					s.logger.Info("Debugger disconnected mid-packet")
					return nil
				}
				return err
			}
		case rsp.Ack:
		case rsp.Nak:
			s.logger.Debug("Debugger received a corrupted packet")
		case rsp.Interrupt:
			s.logger.Debug("Debugger sent an interrupt")
		default:
			s.logger.Debug("Invalid packet type", zap.String("byte", fmt.Sprintf("0x%02x", b)))
		}
	}

	s.logger.Info("Session ended by detach")
	return nil
}

func (s *Session) readByte() (byte, error) {
	data, err := s.conn.Receive(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrSessionClosed
		}
		return 0, err
	}
	if len(data) == 0 {
		return 0, ErrSessionClosed
	}
	return data[0], nil
}

// readPacket collects the body up to the first unescaped '#' and the two
// checksum characters that follow it.
func (s *Session) readPacket() (body, checksum []byte, err error) {
	escaped := false
	for {
		c, err := s.readByte()
		if err != nil {
			return nil, nil, err
		}
		if c == rsp.PacketEnd && !escaped {
			break
		}
		escaped = !escaped && c == rsp.Escape
		body = append(body, c)
	}

	checksum = make([]byte, 0, 2)
	for len(checksum) < 2 {
		c, err := s.readByte()
		if err != nil {
			return nil, nil, err
		}
		checksum = append(checksum, c)
	}
	return body, checksum, nil
}

func (s *Session) handlePacket(ctx context.Context) error {
	body, checksum, err := s.readPacket()
	if err != nil {
		return err
	}

	fields, err := rsp.Decode(body, checksum)
	if err != nil {
		s.logger.Debug("Received corrupted packet", zap.Error(err))
		return s.conn.Send([]byte{rsp.Nak})
	}
	if err := s.conn.Send([]byte{rsp.Ack}); err != nil {
		return err
	}
	logging.LogPacket("received", fields)

	if len(fields) == 0 {
		return nil
	}

	reply, err := s.dispatcher.Dispatch(ctx, fields)
	if err != nil {
		reply, err = s.errorReply(err)
		if err != nil {
			return err
		}
	}
	return s.reply(reply...)
}

// errorReply turns a handler failure into a reply, or returns it when the
// session cannot go on.
func (s *Session) errorReply(err error) ([][]byte, error) {
	var unsupported *rsp.UnsupportedCommandError
	if errors.As(err, &unsupported) {
		s.logger.Debug("Unhandled packet", zap.String("command", unsupported.Command))
		return nil, nil
	}

	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		s.logger.Warn("Bad request arguments", zap.Error(err))
		return [][]byte{errorCode(device.ErrorMalformedCmd)}, nil
	}

	if code, ok := device.CodeOf(err); ok {
		s.logger.Warn("Device reported an error", zap.Error(err))
		return [][]byte{errorCode(code)}, nil
	}

	return nil, err
}

func (s *Session) reply(fields ...[]byte) error {
	logging.LogPacket("sent", fields)
	return s.conn.Send(rsp.Encode(fields...))
}

func errorCode(code device.ErrorKind) []byte {
	return fmt.Appendf(nil, "E%02x", uint8(code))
}
