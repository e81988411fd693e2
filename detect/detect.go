package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/device"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/transport"
)

// HookPosDeviceSkipped fires when a scan drops a device. The item is the
// Record of the device.
var HookPosDeviceSkipped = &hooking.HookPos{Name: "Device Skipped"}

// HookPosDeviceVerified fires when a device reaches Verified. The item is
// the Record.
var HookPosDeviceVerified = &hooking.HookPos{Name: "Device Verified"}

// Options configure detection and the chips it creates.
type Options struct {
	Arc arc.Config
	Eth chip.EthConfig

	// Locked wraps every chip interface with chip.NewLocked.
	Locked bool

	// ChipHooks are attached to the interface of every chip created.
	ChipHooks []hooking.Hook

	// ArcHooks are attached to the ARC client of every chip created.
	ArcHooks []hooking.Hook
}

// DefaultOptions returns the default detection options.
func DefaultOptions() Options {
	return Options{
		Arc: arc.DefaultConfig,
		Eth: chip.DefaultEthConfig,
	}
}

func (o Options) bind(i chip.Interface, spec *arch.Spec, id int) (*device.Chip, error) {
	for _, h := range o.ChipHooks {
		i.AcceptHook(h)
	}

	if o.Locked {
		i = chip.NewLocked(i)
	}

	c, err := device.New(i, spec, device.Options{Arc: o.Arc, DeviceID: id})
	if err != nil {
		return nil, err
	}

	for _, h := range o.ArcHooks {
		c.Arc().AcceptHook(h)
	}

	return c, nil
}

// Probe opens a device and identifies its generation from the tag
// register. The record is Partial, or Failed with ReasonOpen,
// ReasonUnknownArch or ReasonTransport.
func Probe(bus transport.Bus, id int, opts Options) Record {
	rec := Record{ID: id, State: Enumerated}

	h, err := bus.Open(id)
	if err != nil {
		if !chiperr.IsKind(err, chiperr.KindOpen) {
			err = chiperr.Open(id, err)
		}

		return rec.fail(ReasonOpen, err)
	}

	rec.Info, rec.HasInfo = h.Info()

	tag, err := transport.NewAccessor(h, id).Read32(uint32(arch.TagRegister))
	if err != nil {
		h.Close()
		return rec.fail(ReasonTransport, err)
	}

	rec.Tag = tag
	rec.Arch = arch.FromTag(tag)

	if rec.Arch == arch.Unknown {
		h.Close()
		return rec.fail(ReasonUnknownArch, chiperr.UnknownArch(id, tag))
	}

	spec := arch.MustLookup(rec.Arch)

	pci := chip.MakePCIBuilder().
		WithSpec(spec).
		WithEthConfig(opts.Eth).
		WithDeviceID(id).
		Build(h)

	c, err := opts.bind(pci, spec, id)
	if err != nil {
		pci.Close()
		return rec.fail(ReasonTransport, err)
	}

	rec.Chip = c
	rec.State = Partial

	return rec
}

// Upgrade verifies a Partial record. The generation is cross-checked with
// the bus identity, the firmware is probed and, on Wormhole, the Ethernet
// links are read. An unresponsive firmware leaves the chip Verified with
// FirmwareUnavailable set; only transport failures make it Failed. Records
// in other states are returned unchanged.
func Upgrade(ctx context.Context, rec Record) Record {
	if rec.State != Partial {
		return rec
	}

	c := rec.Chip

	if rec.HasInfo && rec.Info.DeviceID != c.Spec().DeviceID {
		return rec.fail(ReasonArchMismatch,
			chiperr.New(chiperr.KindArchMismatch, "detect",
				fmt.Errorf("bus reports device 0x%04x, tag says %s",
					rec.Info.DeviceID, c.Arch())).
				WithDevice(rec.ID))
	}

	if err := c.CheckArc(ctx); err != nil {
		if isTransport(err) {
			return rec.fail(ReasonTransport, err)
		}

		rec.FirmwareUnavailable = true
	}

	if wh, ok := c.AsWormhole(); ok {
		if err := wh.RefreshEth(); err != nil {
			return rec.fail(ReasonTransport, err)
		}
	}

	rec.State = Verified

	return rec
}

func isTransport(err error) bool {
	return chiperr.IsKind(err, chiperr.KindTransport) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
