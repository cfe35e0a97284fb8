// Package discovery advertises and finds debug bridges on the local network
// with multicast DNS.
//
// A bridge serving GDB over TCP or WebSocket can register itself as a
// "_gdbremote._tcp" service. The TXT record carries the transport, the
// device channel and, for WebSocket listeners, the HTTP path:
//
//	proto=tcp
//	channel=hboot
//	tty=/dev/ttyUSB0
//	version=v0.3.0
//
// # Usage Example
//
//	// Advertise while waiting for the debugger
//	ad, err := discovery.Advertise("lab-bench", 1234, discovery.Metadata{"proto": "tcp"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ad.Shutdown()
//
//	// Elsewhere: list bridges
//	bridges, err := discovery.NewScanner().ScanForBridges(ctx)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridge and debugger host must be on the same network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
