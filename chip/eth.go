package chip

import (
	"errors"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/transport"
)

// Eth reaches a chip through the Ethernet mesh. Every local access becomes
// an Ethernet access of the parent toward a fixed target. The parent is the
// chip owning the egress Ethernet core.
type Eth struct {
	hookedBase

	parent Interface
	target addr.RemoteTarget
	spec   *arch.Spec
}

// NewEth creates an interface to the chip at t, of generation spec, reached
// through parent.
func NewEth(parent Interface, t addr.RemoteTarget, spec *arch.Spec) *Eth {
	return &Eth{
		hookedBase: hookedBase{kind: KindEth},
		parent:     parent,
		target:     t,
		spec:       spec,
	}
}

// Parent returns the chip the traffic egresses from.
func (e *Eth) Parent() Interface {
	return e.parent
}

// Target returns the mesh coordinate and route of the chip.
func (e *Eth) Target() addr.RemoteTarget {
	return e.target
}

// Spec returns the generation of the remote chip.
func (e *Eth) Spec() *arch.Spec {
	return e.spec
}

// Grid implements Interface.
func (e *Eth) Grid() addr.Grid {
	return e.spec.Grid
}

// DeviceInfo implements Interface. Remote chips have no bus identity.
func (e *Eth) DeviceInfo() (transport.DeviceInfo, bool) {
	return transport.DeviceInfo{}, false
}

// Close implements Interface. The parent stays open.
func (e *Eth) Close() error {
	return nil
}

func (e *Eth) validate(a addr.NocAddress) error {
	err := a.Validate(e.spec.Grid)
	if err == nil {
		return nil
	}

	var ce *chiperr.Error
	if errors.As(err, &ce) {
		ce.Op = "remote " + ce.Op
	}

	return err
}

// AxiRead implements Interface.
func (e *Eth) AxiRead(a addr.AxiAddress, buf []byte) error {
	return e.traced(e, axiAccess(OpAxiRead, a, buf), func() error {
		return e.parent.EthNocRead(e.target, axiOverNoc(e.spec.Arc, a), buf)
	})
}

// AxiWrite implements Interface.
func (e *Eth) AxiWrite(a addr.AxiAddress, buf []byte) error {
	return e.traced(e, axiAccess(OpAxiWrite, a, buf), func() error {
		return e.parent.EthNocWrite(e.target, axiOverNoc(e.spec.Arc, a), buf)
	})
}

// NocRead implements Interface.
func (e *Eth) NocRead(a addr.NocAddress, buf []byte) error {
	return e.traced(e, nocAccess(OpNocRead, a, buf), func() error {
		if err := e.validate(a); err != nil {
			return err
		}

		return e.parent.EthNocRead(e.target, a, buf)
	})
}

// NocWrite implements Interface.
func (e *Eth) NocWrite(a addr.NocAddress, buf []byte) error {
	return e.traced(e, nocAccess(OpNocWrite, a, buf), func() error {
		if err := e.validate(a); err != nil {
			return err
		}

		return e.parent.EthNocWrite(e.target, a, buf)
	})
}

// NocBroadcast implements Interface.
func (e *Eth) NocBroadcast(noc addr.NocID, offset uint64, buf []byte) error {
	a := addr.At(noc, 0, 0, offset)

	return e.traced(e, nocAccess(OpNocBroadcast, a, buf), func() error {
		return e.parent.EthNocBroadcast(e.target, noc, offset, buf)
	})
}

// EthNocRead implements Interface. Traffic to other chips still egresses
// from the parent.
func (e *Eth) EthNocRead(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	return e.traced(e, ethAccess(OpEthNocRead, t, a, buf), func() error {
		return e.parent.EthNocRead(t, a, buf)
	})
}

// EthNocWrite implements Interface.
func (e *Eth) EthNocWrite(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	return e.traced(e, ethAccess(OpEthNocWrite, t, a, buf), func() error {
		return e.parent.EthNocWrite(t, a, buf)
	})
}

// EthNocBroadcast implements Interface.
func (e *Eth) EthNocBroadcast(
	t addr.RemoteTarget, noc addr.NocID, offset uint64, buf []byte,
) error {
	a := addr.At(noc, 0, 0, offset)

	return e.traced(e, ethAccess(OpEthNocBroadcast, t, a, buf), func() error {
		return e.parent.EthNocBroadcast(t, noc, offset, buf)
	})
}

var _ Interface = (*Eth)(nil)
