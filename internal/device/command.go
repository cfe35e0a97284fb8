package device

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies a device command.
type Kind uint8

const (
	KindUndefined          Kind = 0
	KindAttach             Kind = 1
	KindDetach             Kind = 2
	KindRead               Kind = 3
	KindWrite              Kind = 4
	KindInsertBreakpoint   Kind = 5
	KindRemoveBreakpoint   Kind = 6
	KindBreakpointContinue Kind = 7
	KindGetRegisters       Kind = 8

	// Debug helpers
	KindCall           Kind = 50
	KindFastbootReboot Kind = 51
	KindBreakpoint     Kind = 55
	KindFlashlight     Kind = 80
)

var kindNames = map[Kind]string{
	KindUndefined:          "undefined",
	KindAttach:             "attach",
	KindDetach:             "detach",
	KindRead:               "read",
	KindWrite:              "write",
	KindInsertBreakpoint:   "insert_breakpoint",
	KindRemoveBreakpoint:   "remove_breakpoint",
	KindBreakpointContinue: "breakpoint_continue",
	KindGetRegisters:       "get_registers",
	KindCall:               "call",
	KindFastbootReboot:     "fastboot_reboot",
	KindBreakpoint:         "breakpoint",
	KindFlashlight:         "flashlight",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUndefined, false
}

// carriesData reports whether replies of this kind have a data payload.
func (k Kind) carriesData() bool {
	switch k {
	case KindRead, KindWrite, KindBreakpoint, KindGetRegisters:
		return true
	}
	return false
}

// payloadSize is the number of request bytes following the header.
func (k Kind) payloadSize() int {
	switch k {
	case KindRead, KindInsertBreakpoint, KindRemoveBreakpoint:
		return 8
	case KindWrite:
		return 12
	case KindCall:
		return 20
	case KindFlashlight:
		return 4
	}
	return 0
}

// BreakpointKind is forwarded to the device untouched.
type BreakpointKind uint32

const (
	BreakpointNormal BreakpointKind = 0
	BreakpointTrace  BreakpointKind = 1
)

func (b BreakpointKind) String() string {
	switch b {
	case BreakpointNormal:
		return "BREAKPOINT_NORMAL"
	case BreakpointTrace:
		return "BREAKPOINT_TRACE"
	default:
		return fmt.Sprintf("BreakpointKind(%d)", uint32(b))
	}
}

const headerSize = 2

// Command is a request to the device agent.
type Command struct {
	Kind  Kind
	Error ErrorKind

	Address    uint32
	Size       uint32
	Data       uint32 // write only, sent big-endian
	Breakpoint BreakpointKind
	Args       [4]uint32
	Duration   uint32
}

// Pack encodes the command into its binary layout.
func (c Command) Pack() []byte {
	buf := make([]byte, headerSize+c.Kind.payloadSize())
	buf[0] = byte(c.Kind)
	buf[1] = byte(c.Error)
	p := buf[headerSize:]

	switch c.Kind {
	case KindRead:
		binary.LittleEndian.PutUint32(p[0:], c.Address)
		binary.LittleEndian.PutUint32(p[4:], c.Size)
	case KindWrite:
		binary.LittleEndian.PutUint32(p[0:], c.Address)
		binary.LittleEndian.PutUint32(p[4:], c.Size)
		binary.BigEndian.PutUint32(p[8:], c.Data)
	case KindInsertBreakpoint, KindRemoveBreakpoint:
		binary.LittleEndian.PutUint32(p[0:], c.Address)
		binary.LittleEndian.PutUint32(p[4:], uint32(c.Breakpoint))
	case KindCall:
		binary.LittleEndian.PutUint32(p[0:], c.Address)
		for i, arg := range c.Args {
			binary.LittleEndian.PutUint32(p[4+4*i:], arg)
		}
	case KindFlashlight:
		binary.LittleEndian.PutUint32(p[0:], c.Duration)
	}

	return buf
}

// UnpackCommand decodes a packed request. It is the inverse of Pack and is
// what the agent does on its side of the link.
func UnpackCommand(data []byte) (Command, error) {
	if len(data) < headerSize {
		return Command{}, &MalformedError{Kind: KindUndefined, Size: len(data), Want: headerSize}
	}

	c := Command{Kind: Kind(data[0]), Error: ErrorKind(data[1])}
	want := headerSize + c.Kind.payloadSize()
	if len(data) < want {
		return Command{}, &MalformedError{Kind: c.Kind, Size: len(data), Want: want}
	}
	p := data[headerSize:]

	switch c.Kind {
	case KindRead:
		c.Address = binary.LittleEndian.Uint32(p[0:])
		c.Size = binary.LittleEndian.Uint32(p[4:])
	case KindWrite:
		c.Address = binary.LittleEndian.Uint32(p[0:])
		c.Size = binary.LittleEndian.Uint32(p[4:])
		c.Data = binary.BigEndian.Uint32(p[8:])
	case KindInsertBreakpoint, KindRemoveBreakpoint:
		c.Address = binary.LittleEndian.Uint32(p[0:])
		c.Breakpoint = BreakpointKind(binary.LittleEndian.Uint32(p[4:]))
	case KindCall:
		c.Address = binary.LittleEndian.Uint32(p[0:])
		for i := range c.Args {
			c.Args[i] = binary.LittleEndian.Uint32(p[4+4*i:])
		}
	case KindFlashlight:
		c.Duration = binary.LittleEndian.Uint32(p[0:])
	}

	return c, nil
}

// Reply is a decoded answer from the device agent.
type Reply struct {
	Kind  Kind
	Error ErrorKind
	Data  []byte
}

// Unpack decodes a device reply. Only read, write, breakpoint and
// get_registers replies keep the bytes after the header.
func Unpack(data []byte) (*Reply, error) {
	if len(data) < headerSize {
		return nil, &MalformedError{Kind: KindUndefined, Size: len(data), Want: headerSize}
	}

	r := &Reply{
		Kind:  Kind(data[0]),
		Error: ErrorKind(data[1]),
	}
	if r.Kind.carriesData() {
		r.Data = append([]byte(nil), data[headerSize:]...)
	}
	return r, nil
}

// Pack encodes a reply the way the agent sends it.
func (r *Reply) Pack() []byte {
	buf := make([]byte, 0, headerSize+len(r.Data))
	buf = append(buf, byte(r.Kind), byte(r.Error))
	return append(buf, r.Data...)
}

// Err returns nil for SUCCESS and a *CommandError otherwise.
func (r *Reply) Err() error {
	if r.Error == ErrorSuccess {
		return nil
	}
	return &CommandError{Kind: r.Kind, Code: r.Error}
}

// Request constructors

func AttachCommand() Command             { return Command{Kind: KindAttach} }
func DetachCommand() Command             { return Command{Kind: KindDetach} }
func BreakpointContinueCommand() Command { return Command{Kind: KindBreakpointContinue} }
func GetRegistersCommand() Command       { return Command{Kind: KindGetRegisters} }
func FastbootRebootCommand() Command     { return Command{Kind: KindFastbootReboot} }
func BreakpointCommand() Command         { return Command{Kind: KindBreakpoint} }

func ReadCommand(address, size uint32) Command {
	return Command{Kind: KindRead, Address: address, Size: size}
}

// WriteCommand writes one 32-bit word; the agent cannot take more per request.
func WriteCommand(address, size, data uint32) Command {
	return Command{Kind: KindWrite, Address: address, Size: size, Data: data}
}

func InsertBreakpointCommand(address uint32, kind BreakpointKind) Command {
	return Command{Kind: KindInsertBreakpoint, Address: address, Breakpoint: kind}
}

func RemoveBreakpointCommand(address uint32, kind BreakpointKind) Command {
	return Command{Kind: KindRemoveBreakpoint, Address: address, Breakpoint: kind}
}

func CallCommand(address uint32, args [4]uint32) Command {
	return Command{Kind: KindCall, Address: address, Args: args}
}

func FlashlightCommand(duration uint32) Command {
	return Command{Kind: KindFlashlight, Duration: duration}
}
