// Package chip moves bytes to and from the endpoints of one chip. An
// Interface is bound to how the chip is reached: directly over PCI, through
// another chip's NOC, or through the Ethernet mesh.
package chip

import (
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/transport"
)

// Kind is the way a chip is reached.
type Kind int

// The three ways to reach a chip.
const (
	KindPCI Kind = iota
	KindNoc
	KindEth
)

func (k Kind) String() string {
	switch k {
	case KindPCI:
		return "pci"
	case KindNoc:
		return "noc"
	case KindEth:
		return "eth"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Interface executes addressed accesses on one chip. The buffer length
// determines exactly how many bytes move; a partial transfer is an error.
// Nothing is retried. Implementations do not lock; wrap them with NewLocked
// to share one between goroutines.
//
// The set of implementations is closed: PCI, Noc, Eth and the Locked
// wrapper.
type Interface interface {
	hooking.Hookable

	Kind() Kind
	Grid() addr.Grid

	AxiRead(a addr.AxiAddress, buf []byte) error
	AxiWrite(a addr.AxiAddress, buf []byte) error

	NocRead(a addr.NocAddress, buf []byte) error
	NocWrite(a addr.NocAddress, buf []byte) error

	// NocBroadcast writes buf at offset on every core of a NOC plane.
	// Broadcasts cannot be read, so the offset and length must be word
	// aligned.
	NocBroadcast(noc addr.NocID, offset uint64, buf []byte) error

	EthNocRead(t addr.RemoteTarget, a addr.NocAddress, buf []byte) error
	EthNocWrite(t addr.RemoteTarget, a addr.NocAddress, buf []byte) error
	EthNocBroadcast(
		t addr.RemoteTarget, noc addr.NocID, offset uint64, buf []byte,
	) error

	// DeviceInfo is absent when the transport cannot identify itself.
	DeviceInfo() (transport.DeviceInfo, bool)

	// Close releases what the interface owns. Interfaces layered on a
	// parent never close the parent.
	Close() error

	sealed()
}

// Read32 reads one word at an AXI address.
func Read32(i Interface, a addr.AxiAddress) (uint32, error) {
	buf := make([]byte, 4)
	if err := i.AxiRead(a, buf); err != nil {
		return 0, err
	}

	return transport.Word(buf), nil
}

// Write32 writes one word at an AXI address.
func Write32(i Interface, a addr.AxiAddress, v uint32) error {
	buf := make([]byte, 4)
	transport.PutWord(buf, v)

	return i.AxiWrite(a, buf)
}

// NocRead32 reads one word from a NOC endpoint.
func NocRead32(i Interface, a addr.NocAddress) (uint32, error) {
	buf := make([]byte, 4)
	if err := i.NocRead(a, buf); err != nil {
		return 0, err
	}

	return transport.Word(buf), nil
}

// NocWrite32 writes one word to a NOC endpoint.
func NocWrite32(i Interface, a addr.NocAddress, v uint32) error {
	buf := make([]byte, 4)
	transport.PutWord(buf, v)

	return i.NocWrite(a, buf)
}
