package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/muurk/hbootdbg/internal/transport"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG lookup only applies on linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != "/tmp/xdg/hbootdbg" {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/hbootdbg", configDir)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %v, want 1", cfg.Version)
	}
	if cfg.Device.ReadTimeout != 100*time.Millisecond {
		t.Errorf("Device.ReadTimeout = %v, want 100ms", cfg.Device.ReadTimeout)
	}
	if cfg.Session.ContinuePoll != 100*time.Millisecond || cfg.Session.StepPoll != 50*time.Millisecond {
		t.Errorf("poll intervals = %v/%v, want 100ms/50ms", cfg.Session.ContinuePoll, cfg.Session.StepPoll)
	}
	if cfg.Session.PacketSize != 1024 {
		t.Errorf("Session.PacketSize = %v, want 1024", cfg.Session.PacketSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(NewConfig(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
version: 1
listen:
  address: 0.0.0.0:2345
device:
  tty: /dev/ttyACM0
  fastboot_mode: true
  read_timeout: 250ms
session:
  first_run: true
log_level: debug
firmware: saga_0.98.0002
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := NewConfig()
	want.Listen.Address = "0.0.0.0:2345"
	want.Device.TTY = "/dev/ttyACM0"
	want.Device.FastbootMode = true
	want.Device.ReadTimeout = 250 * time.Millisecond
	want.Session.FirstRun = true
	want.LogLevel = "debug"
	want.Firmware = "saga_0.98.0002"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "version", content: "version: 2\n", wantErr: "unsupported config version"},
		{name: "yaml", content: "version: [\n", wantErr: "failed to parse"},
		{name: "baud", content: "version: 1\ndevice: {baud: 0}\n", wantErr: "device.baud"},
		{name: "poll", content: "version: 1\nsession: {step_poll: 0s}\n", wantErr: "poll intervals"},
		{name: "log level", content: "version: 1\nlog_level: loud\n", wantErr: "unknown log level"},
		{name: "firmware", content: "version: 1\nfirmware: nexus\n", wantErr: "unknown firmware"},
		{name: "listen scheme", content: "version: 1\nlisten: {address: 'udp://x:1'}\n", wantErr: "unsupported listen scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		listen ListenConfig
		want   transport.Endpoint
	}{
		{
			name:   "tcp",
			listen: ListenConfig{Network: "tcp", Address: "127.0.0.1:1234"},
			want:   transport.Endpoint{Network: "tcp", Address: "127.0.0.1:1234"},
		},
		{
			name:   "websocket",
			listen: ListenConfig{Network: "ws", Address: "127.0.0.1:8080/gdb"},
			want:   transport.Endpoint{Network: "ws", Address: "127.0.0.1:8080", Path: "/gdb"},
		},
		{
			name:   "serial",
			listen: ListenConfig{Network: "serial", Address: "/dev/ttyS1", SerialBaud: 115200},
			want:   transport.Endpoint{Network: "serial", Address: "/dev/ttyS1", Baud: 115200},
		},
		{
			name:   "scheme in address wins",
			listen: ListenConfig{Network: "serial", Address: "tcp://[::1]:1234"},
			want:   transport.Endpoint{Network: "tcp", Address: "[::1]:1234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Listen = tt.listen
			got, err := cfg.Endpoint()
			if err != nil {
				t.Fatalf("Endpoint() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Endpoint() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := NewConfig()
	cfg.Device.FastbootMode = true
	cfg.Device.ReconnectInterval = 3 * time.Second
	cfg.Session.FirstRun = true

	link := cfg.LinkConfig()
	if !link.FastbootMode || link.ReconnectInterval != 3*time.Second || link.ReadChunk == 0 {
		t.Errorf("LinkConfig() = %+v", link)
	}

	dbg := cfg.DebuggerConfig()
	if !dbg.FirstRun || dbg.ContinuePoll != 100*time.Millisecond || dbg.StepPoll != 50*time.Millisecond {
		t.Errorf("DebuggerConfig() = %+v", dbg)
	}

	serial := cfg.SerialConfig()
	if serial.Path != "/dev/ttyUSB0" || serial.Baud != 9600 || serial.ReadTimeout != 100*time.Millisecond {
		t.Errorf("SerialConfig() = %+v", serial)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := NewConfig()
	cfg.Device.FastbootMode = true
	cfg.Session.StepPoll = 20 * time.Millisecond

	saved, err := cfg.Save(path)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved != path {
		t.Errorf("Save() path = %q, want %q", saved, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# hbootdbg configuration file") {
		t.Errorf("saved file lacks the header:\n%s", data)
	}
	if !strings.Contains(string(data), "step_poll: 20ms") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
