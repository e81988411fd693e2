package arch

import "github.com/sarchlab/chiplink/addr"

// TLB describes the BAR windows that map NOC endpoints into the host's view
// of the PCI BAR. Each window has a 64-bit configuration register (two
// words) at ConfigBase + 8*index.
type TLB struct {
	ConfigBase addr.AxiAddress
	WindowBase uint32
	WindowSize uint32
	Count      int
}

var defaultTLB = TLB{
	ConfigBase: 0x1fc00000,
	WindowBase: 0x0,
	WindowSize: 1 << 20,
	Count:      16,
}

// ConfigAddr returns the address of the configuration register of a window.
func (t TLB) ConfigAddr(index int) addr.AxiAddress {
	return t.ConfigBase + addr.AxiAddress(8*index)
}

// WindowAddr returns the BAR offset of the first byte of a window.
func (t TLB) WindowAddr(index int) uint32 {
	return t.WindowBase + uint32(index)*t.WindowSize
}

// InWindows reports whether a BAR offset falls in any window, and which.
func (t TLB) InWindows(off uint32) (index int, inWindow uint32, ok bool) {
	if off < t.WindowBase {
		return 0, 0, false
	}

	rel := uint64(off - t.WindowBase)
	if rel >= uint64(t.Count)*uint64(t.WindowSize) {
		return 0, 0, false
	}

	return int(rel / uint64(t.WindowSize)), uint32(rel % uint64(t.WindowSize)), true
}

// InConfig reports whether a BAR offset falls in the configuration
// registers, and which window it configures.
func (t TLB) InConfig(off uint32) (index int, ok bool) {
	base := uint32(t.ConfigBase)
	if off < base || off >= base+uint32(8*t.Count) {
		return 0, false
	}

	return int((off - base) / 8), true
}

// TLBConfig is the decoded content of a window configuration register.
type TLBConfig struct {
	// Base is the NOC offset of the first byte of the window. It must be a
	// multiple of the window size.
	Base      uint64
	X, Y      uint8
	Noc       addr.NocID
	Multicast bool
}

// Layout of a TLB configuration register.
const (
	tlbBaseBits  = 20
	tlbXShift    = 20
	tlbYShift    = 26
	tlbNocShift  = 32
	tlbMcastBit  = 33
	tlbCoordMask = 0x3f
)

// Encode packs the configuration for a window of the given size.
func (c TLBConfig) Encode(windowSize uint32) uint64 {
	v := (c.Base / uint64(windowSize)) & (1<<tlbBaseBits - 1)
	v |= uint64(c.X&tlbCoordMask) << tlbXShift
	v |= uint64(c.Y&tlbCoordMask) << tlbYShift
	v |= uint64(c.Noc&1) << tlbNocShift

	if c.Multicast {
		v |= 1 << tlbMcastBit
	}

	return v
}

// DecodeTLBConfig is the inverse of TLBConfig.Encode.
func DecodeTLBConfig(v uint64, windowSize uint32) TLBConfig {
	return TLBConfig{
		Base:      (v & (1<<tlbBaseBits - 1)) * uint64(windowSize),
		X:         uint8(v>>tlbXShift) & tlbCoordMask,
		Y:         uint8(v>>tlbYShift) & tlbCoordMask,
		Noc:       addr.NocID((v >> tlbNocShift) & 1),
		Multicast: v&(1<<tlbMcastBit) != 0,
	}
}
