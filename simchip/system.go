package simchip

import (
	"errors"
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
)

// SystemConfig describes a simulated host.
type SystemConfig struct {
	Grayskull int
	Blackhole int

	// WormholeRing is the number of Wormhole chips cabled in a ring. The
	// first one sits on the bus, the others are reachable only through
	// Ethernet.
	WormholeRing int

	// Unopenable devices enumerate but fail to open.
	Unopenable int

	// UnknownArch devices open but report an unknown tag.
	UnknownArch int

	// DeadFirmware makes the ARC of every chip unresponsive.
	DeadFirmware bool

	Fill byte
}

// DefaultSystemConfig is a mixed host with one of everything.
var DefaultSystemConfig = SystemConfig{
	Grayskull:    1,
	Blackhole:    1,
	WormholeRing: 4,
	Unopenable:   1,
	UnknownArch:  1,
}

// ErrUnopenable is the open failure of simulated unopenable devices.
var ErrUnopenable = errors.New("device is held by another process")

// UnknownTag is reported by simulated devices of unknown architecture.
const UnknownTag uint32 = 0x0bad_1e52

// NewSystem builds a bus populated as described by cfg.
func NewSystem(cfg SystemConfig) *Bus {
	bus := NewBus()

	fw := DefaultFirmware()
	if cfg.DeadFirmware {
		fw = DeadFirmware()
	}

	base := MakeBuilder().WithFirmware(fw).WithFill(cfg.Fill)

	for i := 0; i < cfg.Grayskull; i++ {
		bus.Attach(base.WithArch(arch.Grayskull).
			Build(fmt.Sprintf("grayskull%d", i)))
	}

	for i := 0; i < cfg.Blackhole; i++ {
		bus.Attach(base.WithArch(arch.Blackhole).
			Build(fmt.Sprintf("blackhole%d", i)))
	}

	if cfg.WormholeRing > 0 {
		ring := Ring(base.WithArch(arch.Wormhole), cfg.WormholeRing)
		bus.Attach(ring[0])
	}

	for i := 0; i < cfg.Unopenable; i++ {
		bus.AttachUnopenable(ErrUnopenable)
	}

	for i := 0; i < cfg.UnknownArch; i++ {
		bus.Attach(base.WithArch(arch.Grayskull).WithTag(UnknownTag).
			Build(fmt.Sprintf("unknown%d", i)))
	}

	return bus
}

// Ring builds n chips at shelf positions 0 to n-1 and cables each chip's
// port 0 to the next chip's port 1 with trained links.
func Ring(b Builder, n int) []*Chip {
	chips := make([]*Chip, n)
	for i := range chips {
		chips[i] = b.WithEthAddr(addr.EthAddr{ShelfX: uint8(i)}).
			Build(fmt.Sprintf("wormhole%d", i))
	}

	if n < 2 {
		return chips
	}

	for i := range chips {
		next := (i + 1) % n
		if n == 2 && i == 1 {
			// Two chips are cabled twice, on ports 2 and 3.
			Connect(chips[1], 2, chips[0], 3, true)
			break
		}

		Connect(chips[i], 0, chips[next], 1, true)
	}

	return chips
}
