package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/hbootdbg/internal/arm"
	"github.com/muurk/hbootdbg/internal/device"
	"github.com/muurk/hbootdbg/internal/logging"
	"github.com/muurk/hbootdbg/internal/transport"
)

// Exec command flags
var execTimeout time.Duration

// execCommand describes one agent command reachable from 'exec'.
type execCommand struct {
	usage   string
	minArgs int
	maxArgs int
	build   func(args []uint32) device.Command
}

var execCommands = map[string]execCommand{
	"attach": {usage: "attach", build: func([]uint32) device.Command { return device.AttachCommand() }},
	"detach": {usage: "detach", build: func([]uint32) device.Command { return device.DetachCommand() }},
	"read": {
		usage: "read ADDR SIZE", minArgs: 2, maxArgs: 2,
		build: func(a []uint32) device.Command { return device.ReadCommand(a[0], a[1]) },
	},
	"write": {
		usage: "write ADDR SIZE DATA", minArgs: 3, maxArgs: 3,
		build: func(a []uint32) device.Command { return device.WriteCommand(a[0], a[1], a[2]) },
	},
	"insert_breakpoint": {
		usage: "insert_breakpoint ADDR [KIND]", minArgs: 1, maxArgs: 2,
		build: func(a []uint32) device.Command {
			return device.InsertBreakpointCommand(a[0], breakpointKind(a))
		},
	},
	"remove_breakpoint": {
		usage: "remove_breakpoint ADDR [KIND]", minArgs: 1, maxArgs: 2,
		build: func(a []uint32) device.Command {
			return device.RemoveBreakpointCommand(a[0], breakpointKind(a))
		},
	},
	"continue":      {usage: "continue", build: func([]uint32) device.Command { return device.BreakpointContinueCommand() }},
	"get_registers": {usage: "get_registers", build: func([]uint32) device.Command { return device.GetRegistersCommand() }},
	"call": {
		usage: "call ADDR [ARG1 [ARG2 [ARG3 [ARG4]]]]", minArgs: 1, maxArgs: 5,
		build: func(a []uint32) device.Command {
			var args [4]uint32
			copy(args[:], a[1:])
			return device.CallCommand(a[0], args)
		},
	},
	"break": {usage: "break", build: func([]uint32) device.Command { return device.BreakpointCommand() }},
	"light": {
		usage: "light DURATION", minArgs: 1, maxArgs: 1,
		build: func(a []uint32) device.Command { return device.FlashlightCommand(a[0]) },
	},
	"reboot": {usage: "reboot", build: func([]uint32) device.Command { return device.FastbootRebootCommand() }},
}

func breakpointKind(args []uint32) device.BreakpointKind {
	if len(args) > 1 {
		return device.BreakpointKind(args[1])
	}
	return device.BreakpointNormal
}

var execCmd = &cobra.Command{
	Use:   "exec COMMAND [ARGS...]",
	Short: "Send one command to the debug agent",
	Long: `Send a single command to the debug agent and print the reply.

Arguments are hexadecimal, with or without a 0x prefix.

Commands:
` + execUsage() + `
  raw WORD                        send a 32-bit word as is (little-endian)

The agent is retried until it answers; use --timeout to give up.`,
	Example: `  # Install the agent's exception handlers
  hbootdbg exec attach

  # Dump 64 bytes at 0x8d000000 over the fastboot channel
  hbootdbg exec -f read 8d000000 40

  # Plant a breakpoint and show the registers once it hits
  hbootdbg exec insert_breakpoint 8d0c1f20
  hbootdbg exec get_registers`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 30*time.Second, "Give up if the device does not answer in time (0 waits forever)")

	rootCmd.AddCommand(execCmd)
}

func execUsage() string {
	names := make([]string, 0, len(execCommands))
	for name := range execCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %s\n", execCommands[name].usage)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// parseHexArgs converts command arguments to 32-bit values.
func parseHexArgs(args []string) ([]uint32, error) {
	out := make([]uint32, len(args))
	for i, a := range args {
		s := strings.TrimPrefix(strings.ToLower(a), "0x")
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %q is not a 32-bit hex value", a)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// buildExecCommand resolves a command line into an agent command.
func buildExecCommand(name string, args []string) (device.Command, error) {
	ec, ok := execCommands[name]
	if !ok {
		return device.Command{}, fmt.Errorf("unknown command %q", name)
	}
	if len(args) < ec.minArgs || len(args) > ec.maxArgs {
		return device.Command{}, fmt.Errorf("usage: %s", ec.usage)
	}
	values, err := parseHexArgs(args)
	if err != nil {
		return device.Command{}, err
	}
	return ec.build(values), nil
}

// rawPayload encodes the word for 'raw'.
func rawPayload(args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: raw WORD")
	}
	values, err := parseHexArgs(args)
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint32(nil, values[0]), nil
}

func runExec(cmd *cobra.Command, args []string) error {
	name, cmdArgs := args[0], args[1:]

	// Validate before touching the device
	var (
		command device.Command
		raw     []byte
		err     error
	)
	if name == "raw" {
		raw, err = rawPayload(cmdArgs)
	} else {
		command, err = buildExecCommand(name, cmdArgs)
	}
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, execTimeout)
		defer cancel()
	}

	link := device.NewLink(transport.SerialDialer(cfg.SerialConfig()), cfg.LinkConfig(), logging.GetLogger())
	defer link.Close()

	out := cmd.OutOrStdout()
	if raw != nil {
		data, err := link.Raw(ctx, raw)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hex.EncodeToString(data))
		return nil
	}

	reply, err := link.Exchange(ctx, command)
	if err != nil {
		return err
	}
	return printReply(out, reply)
}

// printReply shows the status and any data the agent sent back. Register
// contexts are decoded as sent, r11 included.
func printReply(w io.Writer, reply *device.Reply) error {
	fmt.Fprintf(w, "%s: %s\n", reply.Kind, reply.Error)
	if len(reply.Data) == 0 {
		return nil
	}

	if reply.Kind == device.KindGetRegisters && reply.Error == device.ErrorSuccess {
		regs, err := arm.Decode(reply.Data)
		if err != nil {
			return err
		}
		printRegisters(w, regs)
		return nil
	}

	fmt.Fprintln(w, hex.EncodeToString(reply.Data))
	return nil
}

func printRegisters(w io.Writer, regs *arm.RegisterFile) {
	for i, v := range regs.GPR {
		sep := "  "
		if i%4 == 3 {
			sep = "\n"
		}
		fmt.Fprintf(w, "r%-2d 0x%08x%s", i, v, sep)
	}
	fmt.Fprintf(w, "cpsr 0x%08x\n", regs.CPSR)
}
