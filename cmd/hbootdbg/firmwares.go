package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/hbootdbg/internal/device"
)

var firmwaresCmd = &cobra.Command{
	Use:   "firmwares [NAME]",
	Short: "List bootloader builds with known agent offsets",
	Long: `List the bootloader builds the debug agent has been ported to, with the
hook and load addresses used when uploading it.

The bridge itself does not use these offsets; set 'firmware' in the
configuration file to have them logged when serving.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFirmwares,
}

func init() {
	rootCmd.AddCommand(firmwaresCmd)
}

func runFirmwares(cmd *cobra.Command, args []string) error {
	catalog, err := device.LoadFirmwares()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	names := catalog.Names()
	if len(args) == 1 {
		if _, ok := catalog.Get(args[0]); !ok {
			return fmt.Errorf("unknown firmware %q", args[0])
		}
		names = args
	}

	for i, name := range names {
		fw, _ := catalog.Get(name)
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, fw.String())
		fmt.Fprintln(out, fw.FormatOffsets())
		if fw.Notes != "" {
			fmt.Fprintf(out, "  notes: %s\n", fw.Notes)
		}
	}
	return nil
}
