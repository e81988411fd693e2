package addr

import (
	"fmt"

	"github.com/sarchlab/chiplink/chiperr"
)

// Field widths of a system address, from the least significant bit up.
const (
	SysOffsetBits = 36
	SysNocXBits   = 6
	SysNocYBits   = 6
	SysShelfXBits = 6
	SysShelfYBits = 6
	SysRackXBits  = 2
	SysRackYBits  = 2
)

// EthAddr identifies a chip, not a core, in the Ethernet mesh.
type EthAddr struct {
	ShelfX, ShelfY uint8
	RackX, RackY   uint8
}

func (e EthAddr) String() string {
	return fmt.Sprintf("eth[rack(%d,%d) shelf(%d,%d)]",
		e.RackX, e.RackY, e.ShelfX, e.ShelfY)
}

// Encode packs the coordinate into one word, the layout the Ethernet
// firmware uses to publish chip coordinates in its parameter block.
func (e EthAddr) Encode() uint32 {
	return uint32(e.ShelfX) |
		uint32(e.ShelfY)<<8 |
		uint32(e.RackX)<<16 |
		uint32(e.RackY)<<24
}

// DecodeEthAddr is the inverse of EthAddr.Encode.
func DecodeEthAddr(w uint32) EthAddr {
	return EthAddr{
		ShelfX: uint8(w),
		ShelfY: uint8(w >> 8),
		RackX:  uint8(w >> 16),
		RackY:  uint8(w >> 24),
	}
}

// Route is how traffic leaves the local chip: through the Ethernet core at
// (EgressX, EgressY), reaching the target after Hops links.
type Route struct {
	EgressX, EgressY uint8
	Hops             uint8
}

// RemoteTarget is everything needed to reach a chip in the mesh without a
// routing table.
type RemoteTarget struct {
	Chip  EthAddr
	Route Route
}

func (t RemoteTarget) String() string {
	return fmt.Sprintf("%s via (%d,%d) hops=%d",
		t.Chip, t.Route.EgressX, t.Route.EgressY, t.Route.Hops)
}

func fits(v uint64, bits uint) bool {
	return v < 1<<bits
}

// SysAddr serializes a NOC location on the target chip into the 64-bit
// system address carried by an Ethernet command.
func (t RemoteTarget) SysAddr(x, y uint8, offset uint64) (uint64, error) {
	fields := []struct {
		v    uint64
		bits uint
		name string
	}{
		{offset, SysOffsetBits, "offset"},
		{uint64(x), SysNocXBits, "noc x"},
		{uint64(y), SysNocYBits, "noc y"},
		{uint64(t.Chip.ShelfX), SysShelfXBits, "shelf x"},
		{uint64(t.Chip.ShelfY), SysShelfYBits, "shelf y"},
		{uint64(t.Chip.RackX), SysRackXBits, "rack x"},
		{uint64(t.Chip.RackY), SysRackYBits, "rack y"},
	}

	var sys uint64
	var shift uint

	for _, f := range fields {
		if !fits(f.v, f.bits) {
			return 0, chiperr.Addressing("eth sys addr",
				fmt.Errorf("%w: %s=0x%x", chiperr.ErrRouteOverflow, f.name, f.v))
		}

		sys |= f.v << shift
		shift += f.bits
	}

	return sys, nil
}

func field(v uint64, shift, bits uint) uint64 {
	return (v >> shift) & (1<<bits - 1)
}

// DecodeSysAddr splits a system address into the target chip, the NOC core
// and the offset.
func DecodeSysAddr(sys uint64) (chip EthAddr, x, y uint8, offset uint64) {
	var shift uint

	offset = field(sys, shift, SysOffsetBits)
	shift += SysOffsetBits
	x = uint8(field(sys, shift, SysNocXBits))
	shift += SysNocXBits
	y = uint8(field(sys, shift, SysNocYBits))
	shift += SysNocYBits
	chip.ShelfX = uint8(field(sys, shift, SysShelfXBits))
	shift += SysShelfXBits
	chip.ShelfY = uint8(field(sys, shift, SysShelfYBits))
	shift += SysShelfYBits
	chip.RackX = uint8(field(sys, shift, SysRackXBits))
	shift += SysRackXBits
	chip.RackY = uint8(field(sys, shift, SysRackYBits))

	return chip, x, y, offset
}
