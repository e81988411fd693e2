package chip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/poll"
	"github.com/sarchlab/chiplink/transport"
)

// EthConfig bounds the wait for the Ethernet command queue.
type EthConfig struct {
	// Timeout is how long a request may wait for a free slot and then for
	// its response.
	Timeout time.Duration

	PollMin, PollMax time.Duration
}

// DefaultEthConfig is used unless a builder is given another.
var DefaultEthConfig = EthConfig{
	Timeout: 500 * time.Millisecond,
	PollMin: 10 * time.Microsecond,
	PollMax: 10 * time.Millisecond,
}

func (c EthConfig) poll() poll.Config {
	return poll.Config{Timeout: c.Timeout, Min: c.PollMin, Max: c.PollMax}
}

// The NOC address space reachable through a TLB window.
const maxNocOffset = 1 << 40

// window is one TLB window the PCI backend owns, with the configuration it
// last programmed.
type window struct {
	index int
	cfg   arch.TLBConfig
	valid bool
}

// PCI reaches a chip through its PCI BAR. AXI addresses are BAR offsets. NOC
// endpoints are mapped through the last two TLB windows, one for unicast
// and one for multicast. Remote chips are reached through the command queue
// of a local Ethernet core.
type PCI struct {
	hookedBase

	acc  *transport.Accessor
	spec *arch.Spec
	eth  EthConfig

	unicast   window
	multicast window
}

// PCIBuilder builds PCI backends.
type PCIBuilder struct {
	spec *arch.Spec
	eth  EthConfig
	id   int
}

// MakePCIBuilder returns a builder with default parameters.
func MakePCIBuilder() PCIBuilder {
	return PCIBuilder{
		eth: DefaultEthConfig,
		id:  chiperr.NoDevice,
	}
}

// WithSpec sets the generation of the chip. It is required.
func (b PCIBuilder) WithSpec(spec *arch.Spec) PCIBuilder {
	b.spec = spec
	return b
}

// WithEthConfig sets the Ethernet command queue timing.
func (b PCIBuilder) WithEthConfig(c EthConfig) PCIBuilder {
	b.eth = c
	return b
}

// WithDeviceID sets the bus id reported in errors.
func (b PCIBuilder) WithDeviceID(id int) PCIBuilder {
	b.id = id
	return b
}

// Build creates a PCI backend that owns h.
func (b PCIBuilder) Build(h transport.Handle) *PCI {
	if b.spec == nil {
		log.Panic("pci backend needs a chip spec")
	}

	if b.spec.TLB.Count < 2 {
		log.Panic("pci backend needs two tlb windows")
	}

	size := b.spec.TLB.WindowSize
	if size == 0 || size&(size-1) != 0 {
		log.Panicf("tlb window size 0x%x is not a power of two", size)
	}

	return &PCI{
		hookedBase: hookedBase{kind: KindPCI},
		acc:        transport.NewAccessor(h, b.id),
		spec:       b.spec,
		eth:        b.eth,
		unicast:    window{index: b.spec.TLB.Count - 1},
		multicast:  window{index: b.spec.TLB.Count - 2},
	}
}

// Spec returns the generation the backend was built for.
func (p *PCI) Spec() *arch.Spec {
	return p.spec
}

// Grid implements Interface.
func (p *PCI) Grid() addr.Grid {
	return p.spec.Grid
}

// DeviceInfo implements Interface.
func (p *PCI) DeviceInfo() (transport.DeviceInfo, bool) {
	return p.acc.Info()
}

// Close closes the transport handle.
func (p *PCI) Close() error {
	return p.acc.Close()
}

// AxiRead implements Interface.
func (p *PCI) AxiRead(a addr.AxiAddress, buf []byte) error {
	return p.traced(p, axiAccess(OpAxiRead, a, buf), func() error {
		return p.acc.ReadBlock(uint32(a), buf)
	})
}

// AxiWrite implements Interface.
func (p *PCI) AxiWrite(a addr.AxiAddress, buf []byte) error {
	return p.traced(p, axiAccess(OpAxiWrite, a, buf), func() error {
		return p.acc.WriteBlock(uint32(a), buf)
	})
}

// NocRead implements Interface.
func (p *PCI) NocRead(a addr.NocAddress, buf []byte) error {
	return p.traced(p, nocAccess(OpNocRead, a, buf), func() error {
		if err := p.checkNoc(a, len(buf)); err != nil {
			return err
		}

		return p.throughTLB(&p.unicast, tlbTarget(a), a.Offset, buf, false)
	})
}

// NocWrite implements Interface.
func (p *PCI) NocWrite(a addr.NocAddress, buf []byte) error {
	return p.traced(p, nocAccess(OpNocWrite, a, buf), func() error {
		if err := p.checkNoc(a, len(buf)); err != nil {
			return err
		}

		return p.throughTLB(&p.unicast, tlbTarget(a), a.Offset, buf, true)
	})
}

// NocBroadcast implements Interface.
func (p *PCI) NocBroadcast(noc addr.NocID, offset uint64, buf []byte) error {
	a := addr.At(noc, 0, 0, offset)

	return p.traced(p, nocAccess(OpNocBroadcast, a, buf), func() error {
		if err := p.checkBroadcast(offset, len(buf)); err != nil {
			return err
		}

		if err := p.checkNoc(a, len(buf)); err != nil {
			return err
		}

		cfg := arch.TLBConfig{
			X:         p.spec.Grid.Width - 1,
			Y:         p.spec.Grid.Height - 1,
			Noc:       noc,
			Multicast: true,
		}

		return p.throughTLB(&p.multicast, cfg, offset, buf, true)
	})
}

// checkBroadcast refuses broadcasts that would need a read-modify-write.
func (p *PCI) checkBroadcast(offset uint64, n int) error {
	if err := transport.CheckAligned(offset, n); err != nil {
		return chiperr.Addressing("noc broadcast",
			fmt.Errorf("%w: %w", chiperr.ErrBroadcastRead, err)).
			WithDevice(p.acc.ID())
	}

	return nil
}

func tlbTarget(a addr.NocAddress) arch.TLBConfig {
	return arch.TLBConfig{X: a.X, Y: a.Y, Noc: a.Noc}
}

func (p *PCI) checkNoc(a addr.NocAddress, n int) error {
	if err := a.Validate(p.spec.Grid); err != nil {
		var ce *chiperr.Error
		if errors.As(err, &ce) {
			ce.WithDevice(p.acc.ID())
		}

		return err
	}

	if a.Offset+uint64(n) > maxNocOffset {
		return chiperr.Addressing("noc validate",
			fmt.Errorf("offset 0x%x beyond the noc address space", a.Offset)).
			WithDevice(p.acc.ID())
	}

	return nil
}

// throughTLB moves buf at a NOC offset, reprogramming w each time the access
// crosses into another window-sized page.
func (p *PCI) throughTLB(
	w *window,
	cfg arch.TLBConfig,
	off uint64,
	buf []byte,
	write bool,
) error {
	size := uint64(p.spec.TLB.WindowSize)

	for len(buf) > 0 {
		cfg.Base = off &^ (size - 1)
		in := off - cfg.Base
		n := min(uint64(len(buf)), size-in)

		if err := p.program(w, cfg); err != nil {
			return err
		}

		bar := p.spec.TLB.WindowAddr(w.index) + uint32(in)

		var err error
		if write {
			err = p.acc.WriteBlock(bar, buf[:n])
		} else {
			err = p.acc.ReadBlock(bar, buf[:n])
		}

		if err != nil {
			return err
		}

		buf = buf[n:]
		off += n
	}

	return nil
}

func (p *PCI) program(w *window, cfg arch.TLBConfig) error {
	if w.valid && w.cfg == cfg {
		return nil
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, cfg.Encode(p.spec.TLB.WindowSize))

	w.valid = false
	if err := p.acc.WriteBlock(uint32(p.spec.TLB.ConfigAddr(w.index)), buf); err != nil {
		return err
	}

	w.cfg = cfg
	w.valid = true

	return nil
}

func (p *PCI) nocWord(core addr.NocAddress, off uint64) (uint32, error) {
	buf := make([]byte, 4)
	err := p.throughTLB(&p.unicast, tlbTarget(core), core.Offset+off, buf, false)

	return transport.Word(buf), err
}

func (p *PCI) setNocWord(core addr.NocAddress, off uint64, v uint32) error {
	buf := make([]byte, 4)
	transport.PutWord(buf, v)

	return p.throughTLB(&p.unicast, tlbTarget(core), core.Offset+off, buf, true)
}

// EthNocRead implements Interface.
func (p *PCI) EthNocRead(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	return p.traced(p, ethAccess(OpEthNocRead, t, a, buf), func() error {
		q, err := p.ethQueue(t, a, len(buf))
		if err != nil {
			return err
		}

		return p.ethFail("eth noc read", a.Offset,
			transport.ReadUnaligned(q, a.Offset, buf))
	})
}

// EthNocWrite implements Interface.
func (p *PCI) EthNocWrite(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	return p.traced(p, ethAccess(OpEthNocWrite, t, a, buf), func() error {
		q, err := p.ethQueue(t, a, len(buf))
		if err != nil {
			return err
		}

		return p.ethFail("eth noc write", a.Offset,
			transport.WriteUnaligned(q, a.Offset, buf))
	})
}

// EthNocBroadcast implements Interface.
func (p *PCI) EthNocBroadcast(
	t addr.RemoteTarget, noc addr.NocID, offset uint64, buf []byte,
) error {
	a := addr.At(noc, 0, 0, offset)

	return p.traced(p, ethAccess(OpEthNocBroadcast, t, a, buf), func() error {
		if err := p.checkBroadcast(offset, len(buf)); err != nil {
			return err
		}

		q, err := p.ethQueue(t, a, len(buf))
		if err != nil {
			return err
		}

		q.broadcast = true

		return p.ethFail("eth noc broadcast", offset,
			transport.WriteUnaligned(q, offset, buf))
	})
}

// ethFail turns a failure of the command queue into a transport error
// unless it is already classified.
func (p *PCI) ethFail(op string, off uint64, err error) error {
	if err == nil {
		return nil
	}

	var ce *chiperr.Error
	if errors.As(err, &ce) {
		return err
	}

	return chiperr.Transport(op, off, err).WithDevice(p.acc.ID())
}

// ethQueue checks the request and the egress link and returns the queue to
// send it through. The remote grid is unknown here, so the remote address is
// only checked against the fields of the system address.
func (p *PCI) ethQueue(
	t addr.RemoteTarget, a addr.NocAddress, n int,
) (*ethQueue, error) {
	if !a.Noc.Valid() {
		return nil, chiperr.Addressing("eth noc validate",
			fmt.Errorf("%w: %d", chiperr.ErrInvalidNoc, a.Noc)).
			WithDevice(p.acc.ID())
	}

	last := a.Offset
	if n > 0 {
		last += uint64(n) - 1
	}

	for _, off := range []uint64{a.Offset, last} {
		if _, err := t.SysAddr(a.X, a.Y, off); err != nil {
			var ce *chiperr.Error
			if errors.As(err, &ce) {
				ce.WithDevice(p.acc.ID())
			}

			return nil, err
		}
	}

	egress := arch.Coord{X: t.Route.EgressX, Y: t.Route.EgressY}
	if !p.isEthCore(egress) {
		return nil, chiperr.Addressing("eth route",
			fmt.Errorf("no ethernet core at (%d,%d) on %s",
				egress.X, egress.Y, p.spec.Arch)).
			WithDevice(p.acc.ID())
	}

	core := addr.At(addr.Noc0, egress.X, egress.Y, 0)

	status, err := p.nocWord(core, arch.EthLinkStatus)
	if err != nil {
		return nil, err
	}

	if status != arch.EthLinkTrained {
		return nil, chiperr.Transport("eth link", arch.EthLinkStatus,
			fmt.Errorf("%w: core (%d,%d) status %d",
				chiperr.ErrLinkDown, egress.X, egress.Y, status)).
			WithDevice(p.acc.ID())
	}

	return &ethQueue{p: p, core: core, target: t, remote: a}, nil
}

func (p *PCI) isEthCore(c arch.Coord) bool {
	for _, e := range p.spec.Eth {
		if e == c {
			return true
		}
	}

	return false
}

var _ Interface = (*PCI)(nil)
