package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is a parsed listening address for the debugger side.
type Endpoint struct {
	// Network is one of "tcp", "serial" or "ws"
	Network string
	// Address is host:port for tcp and ws, the device node for serial
	Address string
	// Path is the HTTP path for ws
	Path string
	// Baud applies to serial endpoints
	Baud int
}

func (e Endpoint) String() string {
	switch e.Network {
	case "ws":
		return "ws://" + e.Address + e.Path
	case "serial":
		return fmt.Sprintf("serial://%s?baud=%d", e.Address, e.Baud)
	default:
		return "tcp://" + e.Address
	}
}

// ParseEndpoint accepts
//
//	127.0.0.1:1234                 (tcp)
//	tcp://127.0.0.1:1234
//	ws://127.0.0.1:8080/gdb
//	serial:///dev/ttyS0?baud=115200
func ParseEndpoint(s string, defaultBaud int) (Endpoint, error) {
	if !strings.Contains(s, "://") {
		if s == "" {
			return Endpoint{}, fmt.Errorf("empty listen address")
		}
		return Endpoint{Network: "tcp", Address: s}, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid listen address %q: %w", s, err)
	}

	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("tcp listen address %q has no host:port", s)
		}
		return Endpoint{Network: "tcp", Address: u.Host}, nil
	case "ws":
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("ws listen address %q has no host:port", s)
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		return Endpoint{Network: "ws", Address: u.Host, Path: path}, nil
	case "serial":
		if u.Path == "" {
			return Endpoint{}, fmt.Errorf("serial listen address %q has no device path", s)
		}
		baud := defaultBaud
		if v := u.Query().Get("baud"); v != "" {
			baud, err = strconv.Atoi(v)
			if err != nil || baud <= 0 {
				return Endpoint{}, fmt.Errorf("invalid baud rate %q", v)
			}
		}
		return Endpoint{Network: "serial", Address: u.Path, Baud: baud}, nil
	default:
		return Endpoint{}, fmt.Errorf("unsupported listen scheme %q", u.Scheme)
	}
}

// Accept waits for one debugger on e.
func Accept(ctx context.Context, e Endpoint) (Transport, error) {
	switch e.Network {
	case "tcp":
		return AcceptTCP(ctx, e.Address)
	case "ws":
		return AcceptWebSocket(ctx, e.Address, e.Path)
	case "serial":
		return OpenSerial(SerialConfig{Path: e.Address, Baud: e.Baud})
	default:
		return nil, fmt.Errorf("unsupported network %q", e.Network)
	}
}
