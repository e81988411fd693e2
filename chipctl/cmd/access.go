package cmd

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/device"
)

type location struct {
	noc     string
	nocID   uint8
	overNoc bool
	length  int
}

func (l *location) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.noc, "noc", "",
		"access the tile at X,Y instead of the chip's AXI space")
	cmd.Flags().Uint8Var(&l.nocID, "noc-id", 0, "NOC plane, 0 or 1")
	cmd.Flags().BoolVar(&l.overNoc, "over-noc", false,
		"reach the AXI space through the NOC of the ARC core")
}

// axi returns the interface AXI accesses go through.
func (l *location) axi(c *device.Chip) chip.Interface {
	if l.overNoc {
		return chip.NewNoc(c.Interface(), c.Spec().Arc)
	}

	return c.Interface()
}

// target holds either an AXI or a NOC address.
type target struct {
	axi   addr.AxiAddress
	noc   addr.NocAddress
	onNoc bool
}

func (t target) String() string {
	if t.onNoc {
		return t.noc.String()
	}

	return t.axi.String()
}

// resolve turns a number or, for AXI accesses, a register name into a
// target.
func (l *location) resolve(c *device.Chip, where string) (target, error) {
	off, numErr := strconv.ParseUint(where, 0, 64)

	if l.noc == "" {
		if numErr == nil {
			if off > math.MaxUint32 {
				return target{}, fmt.Errorf("AXI address %s is past 32 bits", where)
			}

			return target{axi: addr.AxiAddress(off)}, nil
		}

		a, err := c.Resolver().Resolve(where)
		if err != nil {
			return target{}, err
		}

		return target{axi: a}, nil
	}

	if numErr != nil {
		return target{}, fmt.Errorf("bad NOC offset %q", where)
	}

	xs, ys, ok := strings.Cut(l.noc, ",")
	x, errX := strconv.ParseUint(strings.TrimSpace(xs), 0, 8)
	y, errY := strconv.ParseUint(strings.TrimSpace(ys), 0, 8)

	if !ok || errX != nil || errY != nil {
		return target{}, fmt.Errorf("bad tile %q, want X,Y", l.noc)
	}

	a := addr.At(addr.NocID(l.nocID), uint8(x), uint8(y), off)

	return target{noc: a, onNoc: true}, nil
}

func (l *location) read(c *device.Chip, t target, buf []byte) error {
	if t.onNoc {
		return c.NocRead(t.noc, buf)
	}

	return l.axi(c).AxiRead(t.axi, buf)
}

func (l *location) write(c *device.Chip, t target, buf []byte) error {
	if t.onNoc {
		return c.NocWrite(t.noc, buf)
	}

	return l.axi(c).AxiWrite(t.axi, buf)
}

func newReadCmd(f *flags) *cobra.Command {
	loc := &location{}

	cmd := &cobra.Command{
		Use:   "read <device> <address|register>",
		Short: "Read a word or a block from a chip.",
		Long: "`read 0 0x1fff0000` reads an AXI word of device 0. " +
			"`read 0 ARC_RESET.SCRATCH[5]` reads a register by name. " +
			"`read 0 0x100 --noc 1,1 --len 64` dumps tile memory.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if loc.length <= 0 {
				return fmt.Errorf("bad length %d", loc.length)
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

			t, err := loc.resolve(c, args[1])
			if err != nil {
				return err
			}

			buf := make([]byte, loc.length)
			if err := loc.read(c, t, buf); err != nil {
				return err
			}

			if len(buf) == 4 {
				s.printf("0x%08x\n", binary.LittleEndian.Uint32(buf))
				return nil
			}

			s.printf("%s", hex.Dump(buf))

			return nil
		},
	}

	loc.bind(cmd)
	cmd.Flags().IntVar(&loc.length, "len", 4, "number of bytes to read")

	return cmd
}

func newWriteCmd(f *flags) *cobra.Command {
	loc := &location{}

	cmd := &cobra.Command{
		Use:   "write <device> <address|register> <value>",
		Short: "Write a word to a chip.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[2], 0, 32)
			if err != nil {
				return fmt.Errorf("bad value %q", args[2])
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

			t, err := loc.resolve(c, args[1])
			if err != nil {
				return err
			}

			buf := binary.LittleEndian.AppendUint32(nil, uint32(v))
			if err := loc.write(c, t, buf); err != nil {
				return err
			}

			s.printf("wrote 0x%08x to %s\n", v, t)

			return nil
		},
	}

	loc.bind(cmd)

	return cmd
}
