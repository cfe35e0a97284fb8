package rsp

import (
	"errors"
	"fmt"
)

// Single byte messages outside of packets.
const (
	PacketStart = '$'
	PacketEnd   = '#'
	Escape      = '}'
	Ack         = '+'
	Nak         = '-'
	Interrupt   = 0x03

	escapeXOR = 0x20
)

// ErrDanglingEscape is returned for a body whose last byte is an escape.
var ErrDanglingEscape = errors.New("packet body ends inside an escape sequence")

// ChecksumError reports a packet whose checksum is malformed or wrong.
type ChecksumError struct {
	Got  []byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("bad packet checksum %q, want %02x", e.Got, e.Want)
}

// Checksum returns the sum of data modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Decode validates a packet body against its two checksum characters and
// splits it into unescaped fields. The checksum covers the body as
// received, escapes included.
func Decode(body, checksum []byte) ([][]byte, error) {
	want := Checksum(body)
	got, ok := parseChecksum(checksum)
	if !ok || got != want {
		return nil, &ChecksumError{Got: append([]byte(nil), checksum...), Want: want}
	}

	fields := make([][]byte, 0, 4)
	current := make([]byte, 0, len(body))
	escaped := false
	for _, c := range body {
		switch {
		case escaped:
			current = append(current, c^escapeXOR)
			escaped = false
		case c == Escape:
			escaped = true
		case c == ',' || c == ':' || c == ';':
			fields = append(fields, current)
			current = make([]byte, 0, len(body))
		default:
			current = append(current, c)
		}
	}
	if escaped {
		return nil, ErrDanglingEscape
	}
	fields = append(fields, current)

	if len(fields) == 1 && len(fields[0]) == 0 {
		return nil, nil
	}
	return fields, nil
}

func parseChecksum(s []byte) (byte, bool) {
	if len(s) != 2 {
		return 0, false
	}
	hi, ok1 := lowerHexDigit(s[0])
	lo, ok2 := lowerHexDigit(s[1])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func lowerHexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Encode escapes every field, joins them with ';' and frames the result.
func Encode(fields ...[]byte) []byte {
	payload := make([]byte, 0, 64)
	for i, f := range fields {
		if i > 0 {
			payload = append(payload, ';')
		}
		for _, c := range f {
			if c == PacketStart || c == PacketEnd || c == Escape {
				payload = append(payload, Escape, c^escapeXOR)
				continue
			}
			payload = append(payload, c)
		}
	}

	out := make([]byte, 0, len(payload)+4)
	out = append(out, PacketStart)
	out = append(out, payload...)
	out = append(out, PacketEnd)
	return fmt.Appendf(out, "%02x", Checksum(payload))
}
