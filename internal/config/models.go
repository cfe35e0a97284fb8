package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/hbootdbg/internal/debugger"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/logging"
	"github.com/muurk/hbootdbg/internal/transport"
)

// CurrentVersion is the only configuration format understood.
const CurrentVersion = 1

// Config represents the entire configuration file.
type Config struct {
	Version  int           `yaml:"version"`
	Listen   ListenConfig  `yaml:"listen"`
	Device   DeviceConfig  `yaml:"device"`
	Session  SessionConfig `yaml:"session"`
	LogLevel string        `yaml:"log_level,omitempty"` // debug, info, warn or error; empty is silent
	Firmware string        `yaml:"firmware,omitempty"`  // Name in the firmware catalog, informational
}

// ListenConfig describes the endpoint the debugger connects to.
type ListenConfig struct {
	Network    string `yaml:"network"`             // tcp, ws or serial
	Address    string `yaml:"address"`             // host:port, host:port/path or a device node
	SerialBaud int    `yaml:"serial_baud"`         // Line speed when Network is serial
	Advertise  string `yaml:"advertise,omitempty"` // mDNS instance name; empty disables announcing
}

// DeviceConfig describes how the device agent is reached.
type DeviceConfig struct {
	TTY               string        `yaml:"tty"`
	Baud              int           `yaml:"baud"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`       // Silence that ends a reply
	FastbootMode      bool          `yaml:"fastboot_mode"`      // "oem" channel instead of the hboot shell
	ReconnectInterval time.Duration `yaml:"reconnect_interval"` // Wait between attempts to reopen the tty
}

// SessionConfig controls the debug session.
type SessionConfig struct {
	FirstRun     bool          `yaml:"first_run"`     // Attach and trap the target before accepting the debugger
	ContinuePoll time.Duration `yaml:"continue_poll"` // get_registers interval while continuing
	StepPoll     time.Duration `yaml:"step_poll"`     // get_registers interval while stepping
	PacketSize   int           `yaml:"packet_size"`   // Advertised to the debugger
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Listen: ListenConfig{
			Network:    "tcp",
			Address:    "127.0.0.1:1234",
			SerialBaud: 9600,
		},
		Device: DeviceConfig{
			TTY:               "/dev/ttyUSB0",
			Baud:              9600,
			ReadTimeout:       100 * time.Millisecond,
			FastbootMode:      false,
			ReconnectInterval: time.Second,
		},
		Session: SessionConfig{
			FirstRun:     false,
			ContinuePoll: 100 * time.Millisecond,
			StepPoll:     50 * time.Millisecond,
			PacketSize:   1024,
		},
	}
}

// Validate checks the configuration for values the bridge cannot use.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if _, err := c.Endpoint(); err != nil {
		return err
	}
	if c.Device.TTY == "" {
		return fmt.Errorf("device.tty must be set")
	}
	if c.Device.Baud <= 0 {
		return fmt.Errorf("device.baud must be positive, got %d", c.Device.Baud)
	}
	if c.Device.ReadTimeout <= 0 {
		return fmt.Errorf("device.read_timeout must be positive, got %s", c.Device.ReadTimeout)
	}
	if c.Device.ReconnectInterval <= 0 {
		return fmt.Errorf("device.reconnect_interval must be positive, got %s", c.Device.ReconnectInterval)
	}
	if c.Session.ContinuePoll <= 0 || c.Session.StepPoll <= 0 {
		return fmt.Errorf("session poll intervals must be positive")
	}
	if c.Session.PacketSize <= 0 {
		return fmt.Errorf("session.packet_size must be positive, got %d", c.Session.PacketSize)
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.Firmware != "" {
		catalog, err := device.LoadFirmwares()
		if err != nil {
			return err
		}
		if _, ok := catalog.Get(c.Firmware); !ok {
			return fmt.Errorf("unknown firmware %q (known: %s)", c.Firmware, strings.Join(catalog.Names(), ", "))
		}
	}
	return nil
}

// Endpoint resolves the listen section. An address carrying its own scheme
// wins over Network.
func (c *Config) Endpoint() (transport.Endpoint, error) {
	addr := c.Listen.Address
	if !strings.Contains(addr, "://") && c.Listen.Network != "" && c.Listen.Network != "tcp" {
		addr = c.Listen.Network + "://" + addr
	}
	return transport.ParseEndpoint(addr, c.Listen.SerialBaud)
}

// SerialConfig returns the tty settings of the device link.
func (c *Config) SerialConfig() transport.SerialConfig {
	return transport.SerialConfig{
		Path:        c.Device.TTY,
		Baud:        c.Device.Baud,
		ReadTimeout: c.Device.ReadTimeout,
	}
}

// LinkConfig returns the device link settings.
func (c *Config) LinkConfig() device.LinkConfig {
	link := device.DefaultLinkConfig()
	link.FastbootMode = c.Device.FastbootMode
	link.ReconnectInterval = c.Device.ReconnectInterval
	return link
}

// DebuggerConfig returns the execution controller settings.
func (c *Config) DebuggerConfig() debugger.Config {
	return debugger.Config{
		FirstRun:     c.Session.FirstRun,
		ContinuePoll: c.Session.ContinuePoll,
		StepPoll:     c.Session.StepPoll,
	}
}
