// Package device is the user-facing chip handle. A Chip owns one
// chip.Interface, the register map of its generation and an ARC client, and
// offers typed views for generation-specific features.
package device

import (
	"context"
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/regmap"
	"github.com/sarchlab/chiplink/transport"
)

// Options configure a Chip.
type Options struct {
	Arc arc.Config

	// Resolver overrides the built-in register map of the generation.
	Resolver regmap.Resolver

	// DeviceID is reported in errors.
	DeviceID int
}

// DefaultOptions uses the built-in register maps and the default ARC
// timeout.
func DefaultOptions() Options {
	return Options{
		Arc:      arc.DefaultConfig,
		DeviceID: chiperr.NoDevice,
	}
}

// Chip is a detected chip. It is bound to one interface for its lifetime.
type Chip struct {
	iface chip.Interface
	spec  *arch.Spec
	regs  regmap.Resolver
	arc   *arc.Client
	id    int

	arcAlive   bool
	arcChecked bool
	links      []Link
	ethChecked bool
}

// New binds a chip handle to an interface.
func New(iface chip.Interface, spec *arch.Spec, opts Options) (*Chip, error) {
	regs := opts.Resolver
	if regs == nil {
		m, err := regmap.Embedded(spec.RegMap)
		if err != nil {
			return nil, err
		}

		regs = m
	}

	client, err := arc.MakeBuilder().
		WithPort(iface).
		WithResolver(regs).
		WithMailbox(spec.Mailbox).
		WithConfig(opts.Arc).
		WithDeviceID(opts.DeviceID).
		Build()
	if err != nil {
		return nil, err
	}

	return &Chip{
		iface: iface,
		spec:  spec,
		regs:  regs,
		arc:   client,
		id:    opts.DeviceID,
	}, nil
}

func (c *Chip) String() string {
	where := c.iface.Kind().String()
	if e, ok := c.ethTarget(); ok {
		where = e.String()
	} else if c.id != chiperr.NoDevice {
		where = fmt.Sprintf("%s device %d", where, c.id)
	}

	return fmt.Sprintf("%s (%s)", c.spec.Arch, where)
}

// Arch returns the generation of the chip.
func (c *Chip) Arch() arch.Arch {
	return c.spec.Arch
}

// Spec returns the fixed description of the generation.
func (c *Chip) Spec() *arch.Spec {
	return c.spec
}

// Interface returns the interface the chip is bound to.
func (c *Chip) Interface() chip.Interface {
	return c.iface
}

// Resolver returns the register map of the chip.
func (c *Chip) Resolver() regmap.Resolver {
	return c.regs
}

// Arc returns the ARC client of the chip.
func (c *Chip) Arc() *arc.Client {
	return c.arc
}

// DeviceID returns the bus id, or chiperr.NoDevice.
func (c *Chip) DeviceID() int {
	return c.id
}

// DeviceInfo forwards to the interface.
func (c *Chip) DeviceInfo() (transport.DeviceInfo, bool) {
	return c.iface.DeviceInfo()
}

// IsRemote reports whether the chip is reached through the Ethernet mesh.
func (c *Chip) IsRemote() bool {
	return c.iface.Kind() == chip.KindEth
}

func (c *Chip) ethTarget() (addr.RemoteTarget, bool) {
	i := c.iface
	if l, ok := i.(*chip.Locked); ok {
		i = l.Inner()
	}

	if e, ok := i.(*chip.Eth); ok {
		return e.Target(), true
	}

	return addr.RemoteTarget{}, false
}

// Close releases the interface.
func (c *Chip) Close() error {
	return c.iface.Close()
}

// AxiRead reads bytes from the chip's bus.
func (c *Chip) AxiRead(a addr.AxiAddress, buf []byte) error {
	return c.iface.AxiRead(a, buf)
}

// AxiWrite writes bytes to the chip's bus.
func (c *Chip) AxiWrite(a addr.AxiAddress, buf []byte) error {
	return c.iface.AxiWrite(a, buf)
}

// AxiSRead32 reads the register called name.
func (c *Chip) AxiSRead32(name string) (uint32, error) {
	a, err := c.regs.Resolve(name)
	if err != nil {
		return 0, chiperr.Attach(err, c.id)
	}

	return chip.Read32(c.iface, a)
}

// AxiSWrite32 writes the register called name.
func (c *Chip) AxiSWrite32(name string, v uint32) error {
	a, err := c.regs.Resolve(name)
	if err != nil {
		return chiperr.Attach(err, c.id)
	}

	return chip.Write32(c.iface, a, v)
}

// NocRead reads bytes from a core.
func (c *Chip) NocRead(a addr.NocAddress, buf []byte) error {
	return c.iface.NocRead(a, buf)
}

// NocWrite writes bytes to a core.
func (c *Chip) NocWrite(a addr.NocAddress, buf []byte) error {
	return c.iface.NocWrite(a, buf)
}

// NocBroadcast writes bytes to every core of a NOC plane.
func (c *Chip) NocBroadcast(noc addr.NocID, offset uint64, buf []byte) error {
	return c.iface.NocBroadcast(noc, offset, buf)
}

// ArcMsg exchanges a message with the firmware.
func (c *Chip) ArcMsg(ctx context.Context, msg arc.Msg) (arc.Response, error) {
	return c.arc.Send(ctx, msg)
}

// livenessProbe is the argument of the Test message used to check the
// firmware.
const livenessProbe = 0x5a5a

// CheckArc sends a Test message and records whether the firmware answered
// correctly.
func (c *Chip) CheckArc(ctx context.Context) error {
	resp, err := c.arc.Send(ctx, arc.Test(livenessProbe))
	if err == nil && resp.Arg != livenessProbe+1 {
		err = chiperr.Protocol("arc liveness",
			fmt.Errorf("test answered 0x%x, want 0x%x", resp.Arg, livenessProbe+1)).
			WithDevice(c.id)
	}

	c.arcChecked = true
	c.arcAlive = err == nil

	return err
}

// ArcAlive reports whether the last CheckArc succeeded.
func (c *Chip) ArcAlive() bool {
	return c.arcChecked && c.arcAlive
}

// TelemetryAddr asks the firmware where the telemetry block lives.
func (c *Chip) TelemetryAddr(ctx context.Context) (addr.AxiAddress, error) {
	resp, err := c.arc.Send(ctx, arc.GetSmbusTelemetryAddr())
	if err != nil {
		return 0, err
	}

	return addr.AxiAddress(resp.Arg), nil
}

// FwVersion asks the firmware for a firmware version.
func (c *Chip) FwVersion(ctx context.Context, fw arc.FwType) (uint32, error) {
	resp, err := c.arc.Send(ctx, arc.GetFwVersion(fw))
	if err != nil {
		return 0, err
	}

	return resp.Arg, nil
}

// AsGrayskull returns the Grayskull view of the chip, if it is one.
func (c *Chip) AsGrayskull() (*Grayskull, bool) {
	if c.spec.Arch != arch.Grayskull {
		return nil, false
	}

	return &Grayskull{Chip: c}, true
}

// AsWormhole returns the Wormhole view of the chip, if it is one.
func (c *Chip) AsWormhole() (*Wormhole, bool) {
	if c.spec.Arch != arch.Wormhole {
		return nil, false
	}

	return &Wormhole{Chip: c}, true
}

// AsBlackhole returns the Blackhole view of the chip, if it is one.
func (c *Chip) AsBlackhole() (*Blackhole, bool) {
	if c.spec.Arch != arch.Blackhole {
		return nil, false
	}

	return &Blackhole{Chip: c}, true
}

func mismatch(c *Chip, want arch.Arch) error {
	return chiperr.New(chiperr.KindArchMismatch, "typed view",
		fmt.Errorf("chip is %s, not %s", c.spec.Arch, want)).
		WithDevice(c.id)
}

// NewGrayskull returns the Grayskull view or an ArchMismatch error.
func NewGrayskull(c *Chip) (*Grayskull, error) {
	if g, ok := c.AsGrayskull(); ok {
		return g, nil
	}

	return nil, mismatch(c, arch.Grayskull)
}

// NewWormhole returns the Wormhole view or an ArchMismatch error.
func NewWormhole(c *Chip) (*Wormhole, error) {
	if w, ok := c.AsWormhole(); ok {
		return w, nil
	}

	return nil, mismatch(c, arch.Wormhole)
}

// NewBlackhole returns the Blackhole view or an ArchMismatch error.
func NewBlackhole(c *Chip) (*Blackhole, error) {
	if b, ok := c.AsBlackhole(); ok {
		return b, nil
	}

	return nil, mismatch(c, arch.Blackhole)
}
