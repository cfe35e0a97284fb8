package arm

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func rawContext(cpsr uint32, gpr [NumGPR]uint32) []byte {
	data := make([]byte, ContextSize)
	binary.BigEndian.PutUint32(data[0:], cpsr)
	for i, v := range gpr {
		binary.LittleEndian.PutUint32(data[4+4*i:], v)
	}
	return data
}

func TestLoadEndianness(t *testing.T) {
	data := make([]byte, ContextSize)
	copy(data[0:4], []byte{0x00, 0x00, 0x00, 0x1F})
	copy(data[4:8], []byte{0x01, 0x00, 0x00, 0x00})

	r, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.CPSR != 0x0000001F {
		t.Errorf("cpsr = 0x%08x, want 0x0000001f", r.CPSR)
	}
	if r.GPR[0] != 0x00000001 {
		t.Errorf("r0 = 0x%08x, want 0x00000001", r.GPR[0])
	}
}

func TestLoadOverridesFrameRegister(t *testing.T) {
	inputs := []uint32{0, 0xFFFFFFFF, 0x8D000100, FrameSentinel + 1}
	for _, v := range inputs {
		var gpr [NumGPR]uint32
		gpr[FrameRegister] = v
		r, err := Load(rawContext(0, gpr))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if r.GPR[FrameRegister] != FrameSentinel {
			t.Errorf("r11 = 0x%08x after loading 0x%08x, want 0x%08x", r.GPR[FrameRegister], v, FrameSentinel)
		}
	}
}

func TestDecodeKeepsFrameRegister(t *testing.T) {
	var gpr [NumGPR]uint32
	gpr[FrameRegister] = 0x44
	gpr[PC] = 0x8D000100
	r, err := Decode(rawContext(0x1F, gpr))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if r.GPR[FrameRegister] != 0x44 {
		t.Errorf("r11 = 0x%08x, want 0x00000044", r.GPR[FrameRegister])
	}
	if r.PC() != 0x8D000100 || r.CPSR != 0x1F {
		t.Errorf("pc = 0x%08x cpsr = 0x%08x", r.PC(), r.CPSR)
	}

	if _, err := Decode(make([]byte, 8)); err == nil {
		t.Error("Decode() accepted an 8 byte context")
	}
}

func TestLoadShortContext(t *testing.T) {
	_, err := Load(make([]byte, ContextSize-1))
	var short *ShortContextError
	if !errors.As(err, &short) {
		t.Fatalf("Load() error = %v, want *ShortContextError", err)
	}
}

func TestClientFormat(t *testing.T) {
	var gpr [NumGPR]uint32
	gpr[0] = 0x00000001
	gpr[PC] = 0x8D000100
	r, err := Load(rawContext(0x600001D3, gpr))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := string(r.ClientFormat())
	if len(got) != (NumGPR+NumFPR+2)*8 {
		t.Fatalf("ClientFormat() length = %d, want %d", len(got), (NumGPR+NumFPR+2)*8)
	}

	slot := func(i int) string { return got[i*8 : i*8+8] }

	if slot(0) != "01000000" {
		t.Errorf("r0 slot = %s, want 01000000", slot(0))
	}
	if slot(FrameRegister) != "c0e8058d" {
		t.Errorf("r11 slot = %s, want c0e8058d", slot(FrameRegister))
	}
	if slot(PC) != "0001008d" {
		t.Errorf("pc slot = %s, want 0001008d", slot(PC))
	}
	for i := NumGPR; i < NumGPR+NumFPR+1; i++ {
		if slot(i) != "00000000" {
			t.Errorf("slot %d = %s, want zeros", i, slot(i))
		}
	}
	if slot(NumGPR+NumFPR+1) != "d3010060" {
		t.Errorf("cpsr slot = %s, want d3010060", slot(NumGPR+NumFPR+1))
	}
	if strings.ToLower(got) != got {
		t.Error("ClientFormat() must be lowercase hex")
	}
}

func TestGet(t *testing.T) {
	var gpr [NumGPR]uint32
	for i := range gpr {
		gpr[i] = uint32(i) * 0x10
	}
	r, err := Load(rawContext(0x1F, gpr))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		index   int
		want    uint32
		wantErr bool
	}{
		{index: 0, want: 0},
		{index: 3, want: 0x30},
		{index: FrameRegister, want: FrameSentinel},
		{index: PC, want: 0xF0},
		{index: 16, want: 0},
		{index: 23, want: 0},
		{index: CPSRIndex, want: 0x1F},
		{index: 24, wantErr: true},
		{index: 26, wantErr: true},
		{index: -1, wantErr: true},
	}

	for _, tt := range tests {
		got, err := r.Get(tt.index)
		if tt.wantErr {
			var invalid *InvalidRegisterError
			if !errors.As(err, &invalid) || invalid.Index != tt.index {
				t.Errorf("Get(%d) error = %v, want *InvalidRegisterError", tt.index, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Get(%d) error = %v", tt.index, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Get(%d) = 0x%08x, want 0x%08x", tt.index, got, tt.want)
		}
	}

	if r.PC() != 0xF0 {
		t.Errorf("PC() = 0x%x, want 0xf0", r.PC())
	}

	word, err := r.ClientWord(3)
	if err != nil || string(word) != "30000000" {
		t.Errorf("ClientWord(3) = %s, %v, want 30000000", word, err)
	}
}
