// Package rsp implements the GDB Remote Serial Protocol framing and command
// routing used by the bridge.
//
// # Packet Format
//
//	$<payload>#<checksum>
//
// The payload is a list of fields separated by ',', ':' or ';'. The
// checksum is the sum of the payload bytes modulo 256, as two lowercase hex
// digits. '$', '#' and '}' inside a field are escaped as '}' followed by the
// byte XOR 0x20.
//
// Peers acknowledge every packet with '+' (good checksum) or '-' (bad
// checksum, retransmit). 0x03 outside a packet is an interrupt request.
//
// # Dispatch
//
// The first field selects a handler. Routes are kept in an ordered table
// and matched from the most recently registered to the oldest, so a later
// route shadows an earlier one whose pattern also matches.
package rsp
