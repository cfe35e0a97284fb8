// Package device implements the binary command protocol of the debug agent
// running inside the bootloader, and the link that carries it.
//
// # Wire Format
//
// Every command starts with a two byte header followed by a kind-specific
// payload. Multi-byte fields are little-endian unless noted:
//
//	byte 0      kind id
//	byte 1      error (0 on requests, set by the device on replies)
//	byte 2..    payload
//
//	read                   address:u32 size:u32
//	write                  address:u32 size:u32 data:u32 (big-endian)
//	insert/remove bp       address:u32 kind:u32
//	call                   address:u32 arg0..arg3:u32
//	flashlight             duration:u32
//	everything else        no payload
//
// Replies only carry data for read, write, breakpoint and get_registers.
// Trailing bytes on any other reply are ignored.
//
// # Envelope
//
// The bootloader only exposes a shell-like command channel, so the packed
// command travels base64-encoded behind a textual prefix:
//
//	fastboot mode:  "oem <base64>"
//	hboot mode:     "keytest <base64>\n"
//
// In hboot mode the shell echoes the command line and appends its
// "hboot>" prompt to the reply. Link strips both before decoding. The reply
// itself is raw binary.
//
// # Reachability
//
// The device disappears while it reboots or reflashes. Link.Connect and
// Link.Exchange therefore retry forever at a fixed interval instead of
// failing; pass a cancellable context to bound the wait.
package device
