package device

import (
	"context"
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/bootfs"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/chiperr"
)

// Grayskull is the view of a Grayskull chip.
type Grayskull struct {
	*Chip
}

// Scratch reads one of the ARC scratch registers.
func (g *Grayskull) Scratch(i int) (uint32, error) {
	return g.AxiSRead32(fmt.Sprintf("ARC_RESET.SCRATCH[%d]", i))
}

// Link is the state of one Ethernet core as published by its firmware.
type Link struct {
	Core   arch.Coord
	Status uint32
	Local  addr.EthAddr
	Remote addr.EthAddr
}

// Trained reports whether the link is up.
func (l Link) Trained() bool {
	return l.Status == arch.EthLinkTrained
}

// Training reports whether the link is neither down nor up yet.
func (l Link) Training() bool {
	return l.Status != 0 && !l.Trained()
}

// Wormhole is the view of a Wormhole chip.
type Wormhole struct {
	*Chip
}

// RefreshEth reads the parameter block of every Ethernet core.
func (w *Wormhole) RefreshEth() error {
	links := make([]Link, 0, len(w.spec.Eth))

	for _, core := range w.spec.Eth {
		l := Link{Core: core}

		words := []struct {
			off uint64
			dst func(uint32)
		}{
			{arch.EthLinkStatus, func(v uint32) { l.Status = v }},
			{arch.EthLocalCoord, func(v uint32) { l.Local = addr.DecodeEthAddr(v) }},
			{arch.EthRemoteCoord, func(v uint32) { l.Remote = addr.DecodeEthAddr(v) }},
		}

		for _, word := range words {
			v, err := chip.NocRead32(w.iface, addr.At(addr.Noc0, core.X, core.Y, word.off))
			if err != nil {
				w.links = nil
				w.ethChecked = false

				return chiperr.Attach(err, w.id)
			}

			word.dst(v)
		}

		links = append(links, l)
	}

	w.links = links
	w.ethChecked = true

	return nil
}

// Links returns the link states of the last RefreshEth.
func (w *Wormhole) Links() []Link {
	return w.links
}

// TrainedLinks returns the links that are up.
func (w *Wormhole) TrainedLinks() []Link {
	var up []Link

	for _, l := range w.links {
		if l.Trained() {
			up = append(up, l)
		}
	}

	return up
}

// EthSafe reports whether every Ethernet core was readable and none is in
// the middle of training, so that remote traffic can be sent.
func (w *Wormhole) EthSafe() bool {
	if !w.ethChecked {
		return false
	}

	for _, l := range w.links {
		if l.Training() {
			return false
		}
	}

	return true
}

// EthAddr returns the coordinate of the chip in the mesh, as published by
// its Ethernet firmware.
func (w *Wormhole) EthAddr() (addr.EthAddr, bool) {
	if e, ok := w.ethTarget(); ok {
		return e.Chip, true
	}

	if len(w.links) == 0 {
		return addr.EthAddr{}, false
	}

	return w.links[0].Local, true
}

// Blackhole is the view of a Blackhole chip.
type Blackhole struct {
	*Chip
}

// BootFS decodes a table of the boot filesystem.
func (b *Blackhole) BootFS(t bootfs.Table, tag string) (bootfs.Message, error) {
	m, err := bootfs.Decode(t, tag)
	if err != nil {
		return bootfs.Message{}, chiperr.Attach(err, b.id)
	}

	return m, nil
}

// SpiDumpAddr asks the firmware where it dumps SPI reads.
func (b *Blackhole) SpiDumpAddr(ctx context.Context) (addr.AxiAddress, error) {
	resp, err := b.arc.Send(ctx, arc.GetSpiDumpAddr())
	if err != nil {
		return 0, err
	}

	return addr.AxiAddress(resp.Arg), nil
}
