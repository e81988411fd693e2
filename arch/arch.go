// Package arch describes the three chip generations: how each is identified
// on the bus and where its fixed resources (ARC core, Ethernet cores, TLB
// windows, mailbox registers) live.
package arch

import (
	"fmt"

	"github.com/sarchlab/chiplink/addr"
)

// Arch is a chip generation.
type Arch int

// The known generations.
const (
	Unknown Arch = iota
	Grayskull
	Wormhole
	Blackhole
)

func (a Arch) String() string {
	switch a {
	case Grayskull:
		return "grayskull"
	case Wormhole:
		return "wormhole"
	case Blackhole:
		return "blackhole"
	default:
		return "unknown"
	}
}

// VendorID is the PCI vendor id every generation reports.
const VendorID uint16 = 0x1e52

// TagRegister is the AXI register every generation exposes at the same
// offset. It mirrors the first dword of the PCI configuration header:
// vendor id in the low half, device id in the high half.
const TagRegister addr.AxiAddress = 0x1fff0000

// AxiNocBase is the offset, in the ARC core's NOC address space, at which
// the AXI bus is visible. An AXI address a is reachable over NOC at
// AxiNocBase + a.
const AxiNocBase uint64 = 0x8_0000_0000

// Mailbox names the scratch registers used for ARC messages.
type Mailbox struct {
	Status     string
	Arg        string
	Doorbell   string
	TriggerBit uint
}

// Coord is a position on the NOC grid.
type Coord struct {
	X, Y uint8
}

// Spec is the fixed description of one generation.
type Spec struct {
	Arch     Arch
	DeviceID uint16
	Grid     addr.Grid
	Arc      Coord
	Eth      []Coord
	TLB      TLB
	Mailbox  Mailbox
	RegMap   string
}

// HasEth reports whether the generation has Ethernet cores.
func (s *Spec) HasEth() bool {
	return len(s.Eth) > 0
}

var wormholeEth = []Coord{
	{9, 0}, {1, 0}, {8, 0}, {2, 0}, {7, 0}, {3, 0}, {6, 0}, {4, 0},
	{9, 6}, {1, 6}, {8, 6}, {2, 6}, {7, 6}, {3, 6}, {6, 6}, {4, 6},
}

var blackholeEth = []Coord{
	{1, 1}, {16, 1}, {2, 1}, {15, 1}, {3, 1}, {14, 1}, {4, 1},
	{13, 1}, {5, 1}, {12, 1}, {6, 1}, {11, 1}, {7, 1}, {10, 1},
}

var legacyMailbox = Mailbox{
	Status:     "ARC_RESET.SCRATCH[5]",
	Arg:        "ARC_RESET.SCRATCH[3]",
	Doorbell:   "ARC_RESET.ARC_MISC_CNTL",
	TriggerBit: 16,
}

var specs = map[Arch]*Spec{
	Grayskull: {
		Arch:     Grayskull,
		DeviceID: 0xfaca,
		Grid:     addr.Grid{Width: 13, Height: 12},
		Arc:      Coord{0, 2},
		TLB:      defaultTLB,
		Mailbox:  legacyMailbox,
		RegMap:   "grayskull",
	},
	Wormhole: {
		Arch:     Wormhole,
		DeviceID: 0x401e,
		Grid:     addr.Grid{Width: 10, Height: 12},
		Arc:      Coord{0, 10},
		Eth:      wormholeEth,
		TLB:      defaultTLB,
		Mailbox:  legacyMailbox,
		RegMap:   "wormhole",
	},
	Blackhole: {
		Arch:     Blackhole,
		DeviceID: 0xb140,
		Grid:     addr.Grid{Width: 17, Height: 12},
		Arc:      Coord{8, 0},
		Eth:      blackholeEth,
		TLB:      defaultTLB,
		Mailbox: Mailbox{
			Status:     "ARC_SS.RESET_UNIT.SCRATCH_RAM[5]",
			Arg:        "ARC_SS.RESET_UNIT.SCRATCH_RAM[3]",
			Doorbell:   "ARC_SS.RESET_UNIT.ARC_MISC_CNTL",
			TriggerBit: 16,
		},
		RegMap: "blackhole",
	},
}

// Lookup returns the spec of a known generation.
func Lookup(a Arch) (*Spec, bool) {
	s, ok := specs[a]
	return s, ok
}

// MustLookup returns the spec of a known generation and panics otherwise.
func MustLookup(a Arch) *Spec {
	s, ok := specs[a]
	if !ok {
		panic(fmt.Sprintf("no spec for arch %s", a))
	}

	return s
}

// All lists the known generations.
func All() []Arch {
	return []Arch{Grayskull, Wormhole, Blackhole}
}

// Tag builds the tag word a generation reports in TagRegister.
func (s *Spec) Tag() uint32 {
	return uint32(VendorID) | uint32(s.DeviceID)<<16
}

// FromTag classifies a tag word. Unknown is returned when either the vendor
// or the device id is not recognized.
func FromTag(tag uint32) Arch {
	if uint16(tag) != VendorID {
		return Unknown
	}

	device := uint16(tag >> 16)
	for _, s := range specs {
		if s.DeviceID == device {
			return s.Arch
		}
	}

	return Unknown
}
