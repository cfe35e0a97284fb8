package transport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes a tty endpoint.
type SerialConfig struct {
	// Path is the device node, e.g. /dev/ttyUSB0
	Path string
	// Baud is the line speed. Default: 9600
	Baud int
	// ReadTimeout bounds each Receive. Zero blocks until data arrives.
	ReadTimeout time.Duration
}

// Serial is a Transport over a serial port.
type Serial struct {
	port serial.Port
	path string
}

// OpenSerial opens the port described by cfg with 8N1 framing.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Path, mode)
	if err != nil {
		return nil, &ConnectionError{Endpoint: cfg.Path, Err: err}
	}

	timeout := serial.NoTimeout
	if cfg.ReadTimeout > 0 {
		timeout = cfg.ReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, &ConnectionError{Endpoint: cfg.Path, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	return &Serial{port: port, path: cfg.Path}, nil
}

// SerialDialer returns a Dialer that opens cfg on every call.
func SerialDialer(cfg SerialConfig) Dialer {
	return func(ctx context.Context) (Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenSerial(cfg)
	}
}

// Receive reads at most max bytes. A read timeout yields an empty slice.
func (s *Serial) Receive(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	buf := make([]byte, max)
	n, err := s.port.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Send writes all of p.
func (s *Serial) Send(p []byte) error {
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Close releases the port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// Path returns the device node.
func (s *Serial) Path() string {
	return s.path
}
