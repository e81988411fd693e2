// Package addr defines the value types that name endpoints on and between
// chips: AXI offsets, NOC coordinates and Ethernet mesh coordinates. The types
// own no hardware and perform no I/O.
package addr

import (
	"fmt"

	"github.com/sarchlab/chiplink/chiperr"
)

// AxiAddress is a local bus offset. It has no meaning outside of the chip
// that issues it.
type AxiAddress uint32

func (a AxiAddress) String() string {
	return fmt.Sprintf("axi:0x%08x", uint32(a))
}

// NocID selects one of the two independent NOC router planes.
type NocID uint8

// The two router planes.
const (
	Noc0 NocID = 0
	Noc1 NocID = 1
)

// Valid reports whether the id names an existing plane.
func (n NocID) Valid() bool {
	return n == Noc0 || n == Noc1
}

// Grid is the size of a chip's NOC grid.
type Grid struct {
	Width, Height uint8
}

// Contains reports whether (x, y) lies in the grid.
func (g Grid) Contains(x, y uint8) bool {
	return x < g.Width && y < g.Height
}

// Size returns the number of grid positions.
func (g Grid) Size() int {
	return int(g.Width) * int(g.Height)
}

// NocAddress names a byte in the local memory of the core at (X, Y) on one
// NOC plane.
type NocAddress struct {
	Noc    NocID
	X, Y   uint8
	Offset uint64
}

// At returns a NocAddress.
func At(noc NocID, x, y uint8, offset uint64) NocAddress {
	return NocAddress{Noc: noc, X: x, Y: y, Offset: offset}
}

// Add returns the address moved by delta bytes on the same core.
func (a NocAddress) Add(delta uint64) NocAddress {
	a.Offset += delta
	return a
}

func (a NocAddress) String() string {
	return fmt.Sprintf("noc%d:(%d,%d):0x%x", a.Noc, a.X, a.Y, a.Offset)
}

// Validate fails with an addressing error if the address does not fit the
// grid. Coordinates are never clamped.
func (a NocAddress) Validate(g Grid) error {
	if !a.Noc.Valid() {
		return chiperr.Addressing("noc validate",
			fmt.Errorf("%w: %d", chiperr.ErrInvalidNoc, a.Noc))
	}

	if !g.Contains(a.X, a.Y) {
		return chiperr.Addressing("noc validate",
			fmt.Errorf("%w: (%d,%d) not in %dx%d",
				chiperr.ErrOutOfGrid, a.X, a.Y, g.Width, g.Height))
	}

	return nil
}
