package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metadata is the TXT record of an advertised bridge.
type Metadata map[string]string

// records renders m as sorted key=value strings.
func (m Metadata) records() []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// parseMetadata reads TXT records. A key without '=' maps to "".
func parseMetadata(text []string) Metadata {
	m := make(Metadata, len(text))
	for _, txt := range text {
		key, value, _ := strings.Cut(txt, "=")
		m[key] = value
	}
	return m
}

// Bridge represents a debug bridge found on the network
type Bridge struct {
	// Instance is the advertised instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "bench.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the GDB listener port
	Port int

	// Metadata holds the TXT record
	Metadata Metadata

	// DiscoveredAt is when the bridge was seen
	DiscoveredAt time.Time
}

// Proto returns the advertised transport, "tcp" when absent.
func (b *Bridge) Proto() string {
	if p := b.Metadata["proto"]; p != "" {
		return p
	}
	return "tcp"
}

// Address returns the listen address in the form accepted by 'serve --listen'
// and by GDB's "target remote".
func (b *Bridge) Address() string {
	hostPort := net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
	if b.Proto() == "ws" {
		return "ws://" + hostPort + b.Metadata["path"]
	}
	return hostPort
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	s := fmt.Sprintf("%s (%s) at %s", b.Instance, b.Hostname, b.Address())
	if ch := b.Metadata["channel"]; ch != "" {
		s += ", " + ch + " channel"
	}
	return s
}
