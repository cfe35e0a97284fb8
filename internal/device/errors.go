package device

import (
	"errors"
	"fmt"
)

// ErrorKind is the status byte the agent puts in every reply.
type ErrorKind uint8

const (
	ErrorSuccess                 ErrorKind = 0
	ErrorUnknownCmd              ErrorKind = 1
	ErrorMalformedCmd            ErrorKind = 2
	ErrorInvalidMemoryAccess     ErrorKind = 3
	ErrorBreakpointAlreadyExists ErrorKind = 4
	// ErrorNoBreakpoint means the target has not stopped yet. The poll loop
	// keeps going while it sees this value.
	ErrorNoBreakpoint      ErrorKind = 5
	ErrorNoMemoryAvailable ErrorKind = 6
	ErrorUnmappedMemory    ErrorKind = 7
)

// String returns the agent's name for the error
func (e ErrorKind) String() string {
	switch e {
	case ErrorSuccess:
		return "SUCCESS"
	case ErrorUnknownCmd:
		return "UNKNOWN_CMD"
	case ErrorMalformedCmd:
		return "MALFORMED_CMD"
	case ErrorInvalidMemoryAccess:
		return "INVALID_MEMORY_ACCESS"
	case ErrorBreakpointAlreadyExists:
		return "BREAKPOINT_ALREADY_EXISTS"
	case ErrorNoBreakpoint:
		return "NO_BREAKPOINT"
	case ErrorNoMemoryAvailable:
		return "NO_MEMORY_AVAILABLE"
	case ErrorUnmappedMemory:
		return "UNMAPPED_MEMORY"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(e))
	}
}

// CommandError is returned when the agent answers with anything but SUCCESS.
type CommandError struct {
	// Kind is the command the agent answered
	Kind Kind
	// Code is the status byte of the reply
	Code ErrorKind
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device rejected %s: %s", e.Kind, e.Code)
}

// MalformedError reports a buffer too short for the layout of its kind.
type MalformedError struct {
	Kind Kind
	Size int
	Want int
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s command: %d bytes, need %d", e.Kind, e.Size, e.Want)
}

// Code maps the condition onto the agent's own error space.
func (e *MalformedError) Code() ErrorKind {
	return ErrorMalformedCmd
}

// CodeOf extracts the device error kind carried by err, if any.
func CodeOf(err error) (ErrorKind, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code, true
	}
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		return malformed.Code(), true
	}
	return ErrorSuccess, false
}
