// Package simchip simulates accelerator chips behind a PCI bus: BAR
// registers, TLB windows, core memories, the ARC firmware mailbox and the
// Ethernet mesh with its command queues. It lets every layer above the
// transport run without silicon.
package simchip

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/regmap"
)

const (
	axiCapacity  = 1 << 32
	tileCapacity = 1 << 40
)

// group is a set of chips linked by Ethernet. One mutex serializes every
// access to any of them, since a command on one chip touches another.
type group struct {
	mu    sync.Mutex
	chips []*Chip
}

// Chip is one simulated chip.
type Chip struct {
	name    string
	spec    *arch.Spec
	tag     uint32
	fill    byte
	ethAddr addr.EthAddr

	axi   *Storage
	tiles map[arch.Coord]*Storage
	ports []*Port
	fw    *Firmware
	group *group
	fault error

	mbStatus   uint32
	mbArg      uint32
	mbDoorbell uint32
	trigger    uint32
}

// Builder builds simulated chips.
type Builder struct {
	arch    arch.Arch
	tag     uint32
	hasTag  bool
	fill    byte
	ethAddr addr.EthAddr
	fw      Firmware
}

// MakeBuilder returns a builder for a Wormhole chip with live firmware.
func MakeBuilder() Builder {
	return Builder{
		arch: arch.Wormhole,
		fw:   DefaultFirmware(),
	}
}

// WithArch sets the generation.
func (b Builder) WithArch(a arch.Arch) Builder {
	b.arch = a
	return b
}

// WithTag overrides the word the chip reports in arch.TagRegister. The
// chip keeps the layout of its generation.
func (b Builder) WithTag(tag uint32) Builder {
	b.tag = tag
	b.hasTag = true

	return b
}

// WithFill sets the value of never written bytes.
func (b Builder) WithFill(fill byte) Builder {
	b.fill = fill
	return b
}

// WithEthAddr sets the coordinate of the chip in the mesh.
func (b Builder) WithEthAddr(a addr.EthAddr) Builder {
	b.ethAddr = a
	return b
}

// WithFirmware sets the firmware behavior.
func (b Builder) WithFirmware(fw Firmware) Builder {
	b.fw = fw
	return b
}

// Build creates the chip.
func (b Builder) Build(name string) *Chip {
	spec, ok := arch.Lookup(b.arch)
	if !ok {
		log.Panicf("cannot simulate a chip of arch %s", b.arch)
	}

	fw := b.fw

	c := &Chip{
		name:    name,
		spec:    spec,
		tag:     spec.Tag(),
		fill:    b.fill,
		ethAddr: b.ethAddr,
		axi:     NewStorage(axiCapacity, b.fill),
		tiles:   make(map[arch.Coord]*Storage),
		fw:      &fw,
	}

	if b.hasTag {
		c.tag = b.tag
	}

	c.group = &group{chips: []*Chip{c}}

	c.resolveMailbox()
	c.axi.SetWord(uint64(arch.TagRegister), c.tag)
	c.axi.SetWord(uint64(c.mbDoorbell), 0)

	for i, core := range spec.Eth {
		p := &Port{chip: c, index: i, core: core}
		c.ports = append(c.ports, p)
		p.publish()
	}

	return c
}

func (c *Chip) resolveMailbox() {
	regs := regmap.MustEmbedded(c.spec.RegMap)

	resolve := func(name string) uint32 {
		a, err := regs.Resolve(name)
		if err != nil {
			log.Panic(err)
		}

		return uint32(a)
	}

	c.mbStatus = resolve(c.spec.Mailbox.Status)
	c.mbArg = resolve(c.spec.Mailbox.Arg)
	c.mbDoorbell = resolve(c.spec.Mailbox.Doorbell)
	c.trigger = 1 << c.spec.Mailbox.TriggerBit
}

// Name returns the name the chip was built with.
func (c *Chip) Name() string {
	return c.name
}

// Spec returns the generation of the chip.
func (c *Chip) Spec() *arch.Spec {
	return c.spec
}

// Tag returns the word reported in arch.TagRegister.
func (c *Chip) Tag() uint32 {
	return c.tag
}

// EthAddr returns the coordinate of the chip in the mesh.
func (c *Chip) EthAddr() addr.EthAddr {
	return c.ethAddr
}

// Firmware returns the simulated firmware. Change it only while no access
// is in flight.
func (c *Chip) Firmware() *Firmware {
	return c.fw
}

// Port returns an Ethernet port by index.
func (c *Chip) Port(i int) *Port {
	return c.ports[i]
}

// NumPorts returns the number of Ethernet ports.
func (c *Chip) NumPorts() int {
	return len(c.ports)
}

// InjectFault makes every BAR access fail with err. A nil err clears the
// fault.
func (c *Chip) InjectFault(err error) {
	c.lock()
	defer c.unlock()

	c.fault = err
}

func (c *Chip) lock() {
	c.group.mu.Lock()
}

func (c *Chip) unlock() {
	c.group.mu.Unlock()
}

// ReadAxi returns a word of the AXI space without firmware side effects.
func (c *Chip) ReadAxi(a addr.AxiAddress) uint32 {
	c.lock()
	defer c.unlock()

	v, _ := c.axi.Word(uint64(a))

	return v
}

// WriteAxi stores a word in the AXI space without firmware side effects.
func (c *Chip) WriteAxi(a addr.AxiAddress, v uint32) {
	c.lock()
	defer c.unlock()

	c.axi.SetWord(uint64(a), v)
}

// ReadNoc returns n bytes of the memory of a core.
func (c *Chip) ReadNoc(x, y uint8, off uint64, n int) ([]byte, error) {
	c.lock()
	defer c.unlock()

	t, err := c.tile(x, y)
	if err != nil {
		return nil, err
	}

	return t.Read(off, n)
}

// WriteNoc stores bytes in the memory of a core.
func (c *Chip) WriteNoc(x, y uint8, off uint64, data []byte) error {
	c.lock()
	defer c.unlock()

	t, err := c.tile(x, y)
	if err != nil {
		return err
	}

	return t.Write(off, data)
}

func (c *Chip) tile(x, y uint8) (*Storage, error) {
	if !c.spec.Grid.Contains(x, y) {
		return nil, fmt.Errorf("%w: no core at (%d,%d)", chiperr.ErrOutOfGrid, x, y)
	}

	k := arch.Coord{X: x, Y: y}

	t, ok := c.tiles[k]
	if !ok {
		t = NewStorage(tileCapacity, c.fill)
		c.tiles[k] = t
	}

	return t, nil
}

func (c *Chip) axiRead(a uint32) (uint32, error) {
	if a == c.mbStatus {
		c.fw.onStatusRead(c)
	}

	return c.axi.Word(uint64(a))
}

func (c *Chip) axiWrite(a uint32, v uint32) error {
	if err := c.axi.SetWord(uint64(a), v); err != nil {
		return err
	}

	if a == c.mbDoorbell && v&c.trigger != 0 {
		c.fw.ring(c)
	}

	return nil
}

func (c *Chip) isArc(x, y uint8, off uint64) bool {
	return x == c.spec.Arc.X && y == c.spec.Arc.Y &&
		off >= arch.AxiNocBase && off-arch.AxiNocBase < axiCapacity
}

func (c *Chip) nocRead(x, y uint8, off uint64) (uint32, error) {
	if c.isArc(x, y, off) {
		return c.axiRead(uint32(off - arch.AxiNocBase))
	}

	t, err := c.tile(x, y)
	if err != nil {
		return 0, err
	}

	return t.Word(off)
}

func (c *Chip) nocWrite(x, y uint8, off uint64, v uint32) error {
	if c.isArc(x, y, off) {
		return c.axiWrite(uint32(off-arch.AxiNocBase), v)
	}

	t, err := c.tile(x, y)
	if err != nil {
		return err
	}

	if err := t.SetWord(off, v); err != nil {
		return err
	}

	if off == arch.EthReqQueue {
		if p := c.portAt(x, y); p != nil {
			p.serve()
		}
	}

	return nil
}

func (c *Chip) broadcastWrite(maxX, maxY uint8, off uint64, v uint32) error {
	for x := uint8(0); x <= maxX && x < c.spec.Grid.Width; x++ {
		for y := uint8(0); y <= maxY && y < c.spec.Grid.Height; y++ {
			if err := c.nocWrite(x, y, off, v); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Chip) portAt(x, y uint8) *Port {
	for _, p := range c.ports {
		if p.core.X == x && p.core.Y == y {
			return p
		}
	}

	return nil
}

func (c *Chip) tlbConfig(index int) (arch.TLBConfig, error) {
	raw, err := c.axi.Read(uint64(c.spec.TLB.ConfigAddr(index)), 8)
	if err != nil {
		return arch.TLBConfig{}, err
	}

	return arch.DecodeTLBConfig(binary.LittleEndian.Uint64(raw),
		c.spec.TLB.WindowSize), nil
}

// barRead serves a word read of the BAR. Offsets in a TLB window go to the
// core the window is programmed for; all others are AXI registers.
func (c *Chip) barRead(off uint32) (uint32, error) {
	if c.fault != nil {
		return 0, c.fault
	}

	index, in, ok := c.spec.TLB.InWindows(off)
	if !ok {
		return c.axiRead(off)
	}

	cfg, err := c.tlbConfig(index)
	if err != nil {
		return 0, err
	}

	if cfg.Multicast {
		return 0, fmt.Errorf("%w: tlb window %d", chiperr.ErrBroadcastRead, index)
	}

	return c.nocRead(cfg.X, cfg.Y, cfg.Base+uint64(in))
}

func (c *Chip) barWrite(off uint32, v uint32) error {
	if c.fault != nil {
		return c.fault
	}

	index, in, ok := c.spec.TLB.InWindows(off)
	if !ok {
		return c.axiWrite(off, v)
	}

	cfg, err := c.tlbConfig(index)
	if err != nil {
		return err
	}

	if cfg.Multicast {
		return c.broadcastWrite(cfg.X, cfg.Y, cfg.Base+uint64(in), v)
	}

	return c.nocWrite(cfg.X, cfg.Y, cfg.Base+uint64(in), v)
}
