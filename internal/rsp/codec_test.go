package rsp

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// split breaks an encoded packet into body and checksum.
func split(t *testing.T, packet []byte) ([]byte, []byte) {
	t.Helper()
	if len(packet) < 4 || packet[0] != PacketStart || packet[len(packet)-3] != PacketEnd {
		t.Fatalf("not a framed packet: %q", packet)
	}
	return packet[1 : len(packet)-3], packet[len(packet)-2:]
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		in   string
		want byte
	}{
		{"", 0x00},
		{"OK", 0x9a},
		{"qSupported", 0x37},
		{"m1000,10", 0xbb},
	}
	for _, tt := range tests {
		if got := Checksum([]byte(tt.in)); got != tt.want {
			t.Errorf("Checksum(%q) = %02x, want %02x", tt.in, got, tt.want)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name   string
		fields [][]byte
		want   string
	}{
		{name: "empty", fields: nil, want: "$#00"},
		{name: "ok", fields: [][]byte{[]byte("OK")}, want: "$OK#9a"},
		{name: "joined", fields: [][]byte{[]byte("a"), []byte("b")}, want: "$a;b#fe"},
		{name: "escaped", fields: [][]byte{[]byte("}")}, want: "$}]#da"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.fields...); string(got) != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		body string
		want [][]byte
	}{
		{name: "single", body: "g", want: [][]byte{[]byte("g")}},
		{name: "read memory", body: "m1000,10", want: [][]byte{[]byte("m1000"), []byte("10")}},
		{
			name: "write memory",
			body: "M8d000000,4:deadbeef",
			want: [][]byte{[]byte("M8d000000"), []byte("4"), []byte("deadbeef")},
		},
		{
			name: "query with features",
			body: "qSupported:multiprocess+;swbreak+",
			want: [][]byte{[]byte("qSupported"), []byte("multiprocess+"), []byte("swbreak+")},
		},
		{name: "escaped", body: "a}\x03b", want: [][]byte{[]byte("a#b")}},
		{name: "empty body", body: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := fmt.Appendf(nil, "%02x", Checksum([]byte(tt.body)))
			got, err := Decode([]byte(tt.body), sum)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeRejectsChecksum(t *testing.T) {
	tests := []struct {
		name     string
		checksum string
	}{
		{name: "wrong value", checksum: "00"},
		{name: "uppercase", checksum: "9A"},
		{name: "not hex", checksum: "zz"},
		{name: "short", checksum: "9"},
		{name: "long", checksum: "9a0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte("OK"), []byte(tt.checksum))
			var ce *ChecksumError
			if !errors.As(err, &ce) {
				t.Fatalf("Decode() error = %v, want *ChecksumError", err)
			}
			if ce.Want != 0x9a {
				t.Errorf("Want = %02x, want 9a", ce.Want)
			}
		})
	}
}

func TestDecodeRejectsDanglingEscape(t *testing.T) {
	for _, body := range []string{"}", "m1000,10}"} {
		sum := fmt.Appendf(nil, "%02x", Checksum([]byte(body)))
		if _, err := Decode([]byte(body), sum); !errors.Is(err, ErrDanglingEscape) {
			t.Errorf("Decode(%q) error = %v, want ErrDanglingEscape", body, err)
		}
	}
}

func TestDecodeChecksumBitFlips(t *testing.T) {
	body, sum := split(t, Encode([]byte("m8d000000"), []byte("40")))
	if _, err := Decode(body, sum); err != nil {
		t.Fatalf("Decode(valid) error = %v", err)
	}

	for i := range sum {
		for bit := 0; bit < 8; bit++ {
			flipped := bytes.Clone(sum)
			flipped[i] ^= 1 << bit
			if _, err := Decode(body, flipped); err == nil {
				t.Errorf("Decode() accepted checksum %q (byte %d bit %d flipped)", flipped, i, bit)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tests := [][][]byte{
		{[]byte("OK")},
		{[]byte("S05")},
		{[]byte("$"), []byte("#"), []byte("}")},
		{[]byte("a$b#c}d")},
		{[]byte("PacketSize=1024")},
		{[]byte{0x00, 0x7f, 0xff}},
	}
	for _, fields := range tests {
		body, sum := split(t, Encode(fields...))
		got, err := Decode(body, sum)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)) error = %v", fields, err)
		}
		if diff := cmp.Diff(fields, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}
