package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/hbootdbg/internal/config"
	"github.com/muurk/hbootdbg/internal/logging"
)

// Flags shared by every command that talks to the device
var (
	configPath   string
	logLevel     string
	ttyPath      string
	baudRate     int
	fastbootMode bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error; default: silent)")
	rootCmd.PersistentFlags().StringVar(&ttyPath, "tty", "", "Device tty (default /dev/ttyUSB0)")
	rootCmd.PersistentFlags().IntVar(&baudRate, "baud", 0, "Device tty baud rate (default 9600)")
	rootCmd.PersistentFlags().BoolVarP(&fastbootMode, "fastboot-mode", "f", false, "Use the fastboot 'oem' channel instead of the hboot shell")
}

// loadConfig reads the configuration file and applies the flags the user
// set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("tty") {
		cfg.Device.TTY = ttyPath
	}
	if flags.Changed("baud") {
		cfg.Device.Baud = baudRate
	}
	if flags.Changed("fastboot-mode") {
		cfg.Device.FastbootMode = fastbootMode
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}
