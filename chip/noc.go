package chip

import (
	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/transport"
)

// Noc reaches a chip whose bus is only visible through another interface's
// NOC. AXI accesses become NOC accesses to the ARC core at
// arch.AxiNocBase.
type Noc struct {
	hookedBase

	parent Interface
	arc    arch.Coord
}

// NewNoc layers AXI-over-NOC on parent. The ARC core at arcCore exposes
// the AXI bus.
func NewNoc(parent Interface, arcCore arch.Coord) *Noc {
	return &Noc{
		hookedBase: hookedBase{kind: KindNoc},
		parent:     parent,
		arc:        arcCore,
	}
}

// Parent returns the interface the accesses go through.
func (n *Noc) Parent() Interface {
	return n.parent
}

func axiOverNoc(arc arch.Coord, a addr.AxiAddress) addr.NocAddress {
	return addr.At(addr.Noc0, arc.X, arc.Y, arch.AxiNocBase+uint64(a))
}

// Grid implements Interface.
func (n *Noc) Grid() addr.Grid {
	return n.parent.Grid()
}

// DeviceInfo implements Interface. A chip behind a NOC cannot identify
// itself.
func (n *Noc) DeviceInfo() (transport.DeviceInfo, bool) {
	return transport.DeviceInfo{}, false
}

// Close implements Interface. The parent stays open.
func (n *Noc) Close() error {
	return nil
}

// AxiRead implements Interface.
func (n *Noc) AxiRead(a addr.AxiAddress, buf []byte) error {
	return n.traced(n, axiAccess(OpAxiRead, a, buf), func() error {
		return n.parent.NocRead(axiOverNoc(n.arc, a), buf)
	})
}

// AxiWrite implements Interface.
func (n *Noc) AxiWrite(a addr.AxiAddress, buf []byte) error {
	return n.traced(n, axiAccess(OpAxiWrite, a, buf), func() error {
		return n.parent.NocWrite(axiOverNoc(n.arc, a), buf)
	})
}

// NocRead implements Interface.
func (n *Noc) NocRead(a addr.NocAddress, buf []byte) error {
	return n.traced(n, nocAccess(OpNocRead, a, buf), func() error {
		return n.parent.NocRead(a, buf)
	})
}

// NocWrite implements Interface.
func (n *Noc) NocWrite(a addr.NocAddress, buf []byte) error {
	return n.traced(n, nocAccess(OpNocWrite, a, buf), func() error {
		return n.parent.NocWrite(a, buf)
	})
}

// NocBroadcast implements Interface.
func (n *Noc) NocBroadcast(noc addr.NocID, offset uint64, buf []byte) error {
	a := addr.At(noc, 0, 0, offset)

	return n.traced(n, nocAccess(OpNocBroadcast, a, buf), func() error {
		return n.parent.NocBroadcast(noc, offset, buf)
	})
}

// EthNocRead implements Interface.
func (n *Noc) EthNocRead(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	return n.traced(n, ethAccess(OpEthNocRead, t, a, buf), func() error {
		return n.parent.EthNocRead(t, a, buf)
	})
}

// EthNocWrite implements Interface.
func (n *Noc) EthNocWrite(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	return n.traced(n, ethAccess(OpEthNocWrite, t, a, buf), func() error {
		return n.parent.EthNocWrite(t, a, buf)
	})
}

// EthNocBroadcast implements Interface.
func (n *Noc) EthNocBroadcast(
	t addr.RemoteTarget, noc addr.NocID, offset uint64, buf []byte,
) error {
	a := addr.At(noc, 0, 0, offset)

	return n.traced(n, ethAccess(OpEthNocBroadcast, t, a, buf), func() error {
		return n.parent.EthNocBroadcast(t, noc, offset, buf)
	})
}

var _ Interface = (*Noc)(nil)
