package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/chiplink/arc"
)

var arcMsgs = map[string]func(args [2]uint16) arc.Msg{
	"nop":        func([2]uint16) arc.Msg { return arc.Nop() },
	"test":       func(a [2]uint16) arc.Msg { return arc.Test(a[0]) },
	"fw-version": func(a [2]uint16) arc.Msg { return arc.GetFwVersion(arc.FwType(a[0])) },
	"telemetry":  func([2]uint16) arc.Msg { return arc.GetSmbusTelemetryAddr() },
	"spi-dump":   func([2]uint16) arc.Msg { return arc.GetSpiDumpAddr() },
	"sleep":      func([2]uint16) arc.Msg { return arc.ArcGoToSleep() },
	"reset":      func([2]uint16) arc.Msg { return arc.TriggerReset() },
}

func arcMsgNames() string {
	names := make([]string, 0, len(arcMsgs))
	for n := range arcMsgs {
		names = append(names, n)
	}

	sort.Strings(names)

	return strings.Join(names, ", ")
}

// parseMsg builds a message from a name or a raw opcode and up to two
// arguments.
func parseMsg(name string, rest []string) (arc.Msg, error) {
	var args [2]uint16

	for i, s := range rest {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return arc.Msg{}, fmt.Errorf("bad argument %q", s)
		}

		args[i] = uint16(v)
	}

	if build, ok := arcMsgs[name]; ok {
		return build(args), nil
	}

	op, err := strconv.ParseUint(name, 0, 16)
	if err != nil {
		return arc.Msg{}, fmt.Errorf("unknown message %q, want an opcode or one of %s",
			name, arcMsgNames())
	}

	return arc.Raw(uint16(op), args[0], args[1]), nil
}

func newArcCmd(f *flags) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "arc <device> <message|opcode> [arg0] [arg1]",
		Short: "Send a message to the ARC firmware of a chip.",
		Long: "`arc 0 test 7` sends the liveness probe; the firmware answers 8. " +
			"Known messages: " + arcMsgNames() + ".",
		Args: cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := parseMsg(args[1], args[2:])
			if err != nil {
				return err
			}

			if noWait {
				msg.Wait = arc.NoWait
			}

			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := s.device(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			resp, err := c.ArcMsg(cmd.Context(), msg)
			if err != nil {
				return err
			}

			s.printf("%s: %s\n", msg, resp)

			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the answer")

	return cmd
}
