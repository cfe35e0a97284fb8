// Package transport provides the byte-stream endpoints the bridge talks
// through: the debugger side (TCP, serial or WebSocket) and the device side
// (serial).
//
// All endpoints implement Transport. Receive may return fewer bytes than
// requested. An empty result with a nil error means the read window elapsed
// with nothing to read, which the device link uses as its end-of-reply
// marker; io.EOF means the peer went away.
package transport
