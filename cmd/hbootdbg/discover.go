package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/hbootdbg/internal/discovery"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find bridges announced on the local network",
	Long: `Browse mDNS for bridges started with 'hbootdbg serve --advertise' and
print the address to give to GDB's "target remote".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		scanner := discovery.NewScanner()
		scanner.Timeout = discoverTimeout

		bridges, err := scanner.ScanForBridges(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(bridges) == 0 {
			fmt.Fprintln(out, "No bridges found")
			return nil
		}
		for _, b := range bridges {
			fmt.Fprintln(out, b.String())
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for answers")
	rootCmd.AddCommand(discoverCmd)
}
