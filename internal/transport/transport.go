package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Transport is a bidirectional byte stream.
type Transport interface {
	// Receive reads at most max bytes.
	Receive(max int) ([]byte, error)
	// Send writes all of p.
	Send(p []byte) error
	Close() error
}

// Dialer opens a transport to the device.
type Dialer func(ctx context.Context) (Transport, error)

// ConnectionError reports a failure to open or accept an endpoint.
type ConnectionError struct {
	// Endpoint is the address or device path involved
	Endpoint string
	// Underlying error
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Stream adapts an io.ReadWriteCloser. When the underlying value is a
// net.Conn and ReadWindow is set, Receive returns an empty slice once the
// window elapses without data.
type Stream struct {
	rwc        io.ReadWriteCloser
	readWindow time.Duration
}

// NewStream wraps rwc. A zero window blocks until data or EOF.
func NewStream(rwc io.ReadWriteCloser, readWindow time.Duration) *Stream {
	return &Stream{rwc: rwc, readWindow: readWindow}
}

// Receive reads at most max bytes.
func (s *Stream) Receive(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	if conn, ok := s.rwc.(net.Conn); ok && s.readWindow > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.readWindow)); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, max)
	n, err := s.rwc.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return nil, nil
}

// Send writes all of p.
func (s *Stream) Send(p []byte) error {
	for len(p) > 0 {
		n, err := s.rwc.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Close closes the underlying stream.
func (s *Stream) Close() error {
	return s.rwc.Close()
}

// RemoteAddr returns the peer address when the stream is a network
// connection, and "" otherwise.
func (s *Stream) RemoteAddr() string {
	if conn, ok := s.rwc.(net.Conn); ok {
		return conn.RemoteAddr().String()
	}
	return ""
}
