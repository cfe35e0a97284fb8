// Hbootdbg bridges a GDB client to the debug agent running inside the HTC
// hboot bootloader.
//
// The agent is reached over the phone's USB serial tty, either through the
// fastboot "oem" channel or the interactive hboot shell. The bridge speaks
// the GDB Remote Serial Protocol on a TCP, WebSocket or serial endpoint and
// translates each request into agent commands.
//
// Usage:
//
//	hbootdbg serve [flags]
//	hbootdbg exec <command> [args]
//	hbootdbg discover
//
// See 'hbootdbg --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/hbootdbg/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hbootdbg",
	Short: "GDB bridge for the hboot debug agent",
	Long: `Bridge between a GDB client and the debug agent loaded into hboot.

The agent must already be running on the device. hbootdbg talks to it over
the USB serial tty, using the fastboot "oem" command channel or the
interactive hboot "keytest" shell, and exposes a GDB remote target.

Settings come from the configuration file (see 'hbootdbg config path');
command line flags override them.`,
	Version: version.Version,
	Example: `  # Serve GDB on 127.0.0.1:1234 using the hboot shell on /dev/ttyUSB0
  hbootdbg serve

  # Use the fastboot channel and trap the target before GDB connects
  hbootdbg serve --fastboot-mode --first-run

  # Read 16 bytes from the agent without GDB
  hbootdbg exec read 8d000000 10`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hbootdbg %s\n", version.Full())
	},
}
