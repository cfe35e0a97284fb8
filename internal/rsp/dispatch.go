package rsp

import (
	"context"
	"fmt"
	"regexp"
)

// CommandID names a GDB request the bridge understands.
type CommandID int

const (
	CmdSupported CommandID = iota
	CmdAttached
	CmdCurrentThread
	CmdSetThread
	CmdStopReason
	CmdReadRegisters
	CmdReadRegister
	CmdContinue
	CmdStep
	CmdReadMemory
	CmdWriteMemory
	CmdInsertBreakpoint
	CmdRemoveBreakpoint
	CmdDetach
)

var commandNames = map[CommandID]string{
	CmdSupported:        "qSupported",
	CmdAttached:         "qAttached",
	CmdCurrentThread:    "qC",
	CmdSetThread:        "H",
	CmdStopReason:       "?",
	CmdReadRegisters:    "g",
	CmdReadRegister:     "p",
	CmdContinue:         "c",
	CmdStep:             "s",
	CmdReadMemory:       "m",
	CmdWriteMemory:      "M",
	CmdInsertBreakpoint: "Z0",
	CmdRemoveBreakpoint: "z0",
	CmdDetach:           "D",
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CommandID(%d)", int(c))
}

// Patterns matched against the first field of each packet.
var DefaultPatterns = map[CommandID]string{
	CmdSupported:        `^qSupported$`,
	CmdAttached:         `^qAttached$`,
	CmdCurrentThread:    `^qC$`,
	CmdSetThread:        `^H([mMgGcC])(-?[0-9a-fA-F]+)$`,
	CmdStopReason:       `^\?$`,
	CmdReadRegisters:    `^g$`,
	CmdReadRegister:     `^p([0-9a-fA-F]+)$`,
	CmdContinue:         `^c$`,
	CmdStep:             `^s$`,
	CmdReadMemory:       `^m([0-9a-fA-F]+)$`,
	CmdWriteMemory:      `^M([0-9a-fA-F]+)$`,
	CmdInsertBreakpoint: `^Z0$`,
	CmdRemoveBreakpoint: `^z0$`,
	CmdDetach:           `^D$`,
}

// UnsupportedCommandError reports a packet no route matches.
type UnsupportedCommandError struct {
	Command string
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("unsupported command %q", e.Command)
}

// Request is a matched packet handed to a Handler.
type Request struct {
	ID CommandID
	// Groups holds the capture groups of the matching pattern.
	Groups [][]byte
	// Args holds the packet fields after the command.
	Args [][]byte
}

// Arg returns the i-th argument or nil.
func (r *Request) Arg(i int) []byte {
	if i < 0 || i >= len(r.Args) {
		return nil
	}
	return r.Args[i]
}

// Group returns the i-th capture group or nil.
func (r *Request) Group(i int) []byte {
	if i < 0 || i >= len(r.Groups) {
		return nil
	}
	return r.Groups[i]
}

// Handler answers a request with the fields of the reply packet.
type Handler func(ctx context.Context, req *Request) ([][]byte, error)

type route struct {
	id      CommandID
	pattern *regexp.Regexp
	handler Handler
}

// Dispatcher routes decoded packets to handlers.
type Dispatcher struct {
	routes []route
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a route. Routes registered later take precedence.
func (d *Dispatcher) Register(id CommandID, pattern string, handler Handler) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile pattern for %s: %w", id, err)
	}
	d.routes = append(d.routes, route{id: id, pattern: re, handler: handler})
	return nil
}

// Handle registers handler under the default pattern for id.
func (d *Dispatcher) Handle(id CommandID, handler Handler) {
	pattern, ok := DefaultPatterns[id]
	if !ok {
		panic(fmt.Sprintf("rsp: no default pattern for %s", id))
	}
	d.routes = append(d.routes, route{id: id, pattern: regexp.MustCompile(pattern), handler: handler})
}

// Match finds the newest route whose pattern matches the first field.
func (d *Dispatcher) Match(fields [][]byte) (*Request, Handler, bool) {
	if len(fields) == 0 {
		return nil, nil, false
	}
	for i := len(d.routes) - 1; i >= 0; i-- {
		r := d.routes[i]
		groups := r.pattern.FindSubmatch(fields[0])
		if groups == nil {
			continue
		}
		return &Request{ID: r.id, Groups: groups[1:], Args: fields[1:]}, r.handler, true
	}
	return nil, nil, false
}

// Dispatch runs the handler for fields. It returns an
// *UnsupportedCommandError when no route matches; the caller answers those
// with an empty packet.
func (d *Dispatcher) Dispatch(ctx context.Context, fields [][]byte) ([][]byte, error) {
	req, handler, ok := d.Match(fields)
	if !ok {
		var command []byte
		if len(fields) > 0 {
			command = fields[0]
		}
		return nil, &UnsupportedCommandError{Command: string(command)}
	}
	return handler(ctx, req)
}
