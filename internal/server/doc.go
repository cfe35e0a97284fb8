// Package server bridges one GDB client to the bootloader debug agent.
//
// The server accepts a single debugger on a TCP, WebSocket or serial
// endpoint and runs a Session: a blocking read loop that frames RSP
// packets, acknowledges them and routes each command through an
// rsp.Dispatcher to a handler backed by a debugger.Controller.
//
// # Session Loop
//
// Each iteration reads one byte from the client:
//   - '$' starts a packet; bytes are collected up to the first unescaped
//     '#', followed by two checksum characters. A good packet is acked
//     with '+' and dispatched, a bad one is nakked with '-'.
//   - '+' and '-' acknowledge our own replies and are ignored.
//   - 0x03 is an interrupt request. The agent cannot be interrupted, so it
//     is only logged.
//   - Anything else is logged and dropped.
//
// An empty read or EOF from the client ends the session cleanly.
//
// # Replies
//
// Unknown commands get an empty packet. Errors reported by the agent are
// returned as E<code>, where code is the agent's error byte in hex. Access
// to a register index outside the register file ends the session.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Listen:   transport.Endpoint{Network: "tcp", Address: "127.0.0.1:1234"},
//	    Link:     device.DefaultLinkConfig(),
//	    Session:  debugger.DefaultConfig(),
//	    LogLevel: "info",
//	}, transport.SerialDialer(transport.SerialConfig{Path: "/dev/ttyUSB0"}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until the session ends or SIGINT/SIGTERM arrives
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the context passed to the session is cancelled, the
// client transport is closed to unblock the read loop and the device link
// is released. A continue or step waiting for the target gives up at its
// next poll.
package server
