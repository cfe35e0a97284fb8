package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/hbootdbg/internal/config"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/discovery"
	"github.com/muurk/hbootdbg/internal/logging"
	"github.com/muurk/hbootdbg/internal/server"
	"github.com/muurk/hbootdbg/internal/transport"
	"github.com/muurk/hbootdbg/internal/version"
)

// Serve command flags
var (
	listenAddr string
	listenBaud int
	firstRun   bool
	packetSize int
	advertise  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a GDB remote target",
	Long: `Accept one GDB client and bridge it to the debug agent.

The listen address is host:port for TCP, ws://host:port/path for GDB over
WebSocket, or serial:///dev/ttyX?baud=N to talk to GDB over a serial line.

With --first-run the bridge attaches to the agent and injects a breakpoint
trap before accepting the client, so the target is stopped when GDB
connects. Without it the agent is assumed to be attached from an earlier
session.

The session ends when GDB detaches or disconnects, or on Ctrl+C.`,
	Example: `  # Default: hboot shell on /dev/ttyUSB0, GDB on 127.0.0.1:1234
  hbootdbg serve

  # Fastboot channel, fresh session, verbose logs
  hbootdbg serve -f --first-run --log-level debug

  # Announce the bridge on the LAN
  hbootdbg serve --listen 0.0.0.0:1234 --advertise bench

  # Then, from GDB:
  #   (gdb) target remote 127.0.0.1:1234`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default 127.0.0.1:1234)")
	serveCmd.Flags().IntVar(&listenBaud, "listen-baud", 0, "Baud rate for a serial listen address without ?baud=")
	serveCmd.Flags().BoolVarP(&firstRun, "first-run", "r", false, "Attach and trap the target before accepting GDB")
	serveCmd.Flags().IntVar(&packetSize, "packet-size", 0, "PacketSize advertised to GDB (default 1024)")
	serveCmd.Flags().StringVar(&advertise, "advertise", "", "Announce the listener over mDNS under this name (see 'hbootdbg discover')")

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies the serve flags the user set into cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen.Network = ""
		cfg.Listen.Address = listenAddr
	}
	if flags.Changed("listen-baud") {
		cfg.Listen.SerialBaud = listenBaud
	}
	if flags.Changed("first-run") {
		cfg.Session.FirstRun = firstRun
	}
	if flags.Changed("advertise") {
		cfg.Listen.Advertise = advertise
	}
	if flags.Changed("packet-size") {
		if packetSize <= 0 {
			return fmt.Errorf("--packet-size must be positive")
		}
		cfg.Session.PacketSize = packetSize
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	endpoint, err := cfg.Endpoint()
	if err != nil {
		return err
	}

	if cfg.Firmware != "" {
		logFirmware(cfg.Firmware)
	}

	srv, err := server.New(&server.Config{
		Listen:     endpoint,
		Link:       cfg.LinkConfig(),
		Session:    cfg.DebuggerConfig(),
		PacketSize: cfg.Session.PacketSize,
		LogLevel:   cfg.LogLevel,
		Advertise:  cfg.Listen.Advertise,
		AdvertiseMeta: discovery.Metadata{
			"tty":     cfg.Device.TTY,
			"version": version.Version,
		},
	}, transport.SerialDialer(cfg.SerialConfig()))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Waiting for GDB on %s (device %s, %s)\n",
		endpoint, cfg.Device.TTY, channelName(cfg.Device.FastbootMode))
	return srv.Start()
}

func channelName(fastboot bool) string {
	if fastboot {
		return "fastboot oem"
	}
	return "hboot keytest"
}

// logFirmware reports the offsets the agent was built against. The bridge
// itself never uses them.
func logFirmware(name string) {
	catalog, err := device.LoadFirmwares()
	if err != nil {
		logging.Warn("Firmware catalog unavailable", zap.Error(err))
		return
	}
	fw, ok := catalog.Get(name)
	if !ok {
		return
	}
	logging.Info("Target firmware",
		zap.String("firmware", fw.String()),
		zap.Bool("verified", fw.Verified),
		zap.Bool("offsets_complete", fw.Offsets.Complete()),
	)
}
