package simchip

import (
	"fmt"
	"os"
	"sync"

	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/transport"
)

// BarSize is the size of the simulated BAR: the whole 32-bit AXI space.
const BarSize = axiCapacity

type slot struct {
	chip    *Chip
	openErr error
	noInfo  bool
}

// Bus is a simulated PCI bus. Chips attached to it are local; chips only
// linked by Ethernet are reachable through the mesh.
type Bus struct {
	mu    sync.Mutex
	slots []slot
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Attach plugs a chip in and returns its device id.
func (b *Bus) Attach(c *Chip) int {
	return b.add(slot{chip: c})
}

// AttachAnonymous plugs a chip in whose handle cannot identify itself.
func (b *Bus) AttachAnonymous(c *Chip) int {
	return b.add(slot{chip: c, noInfo: true})
}

// AttachUnopenable lists a device that fails to open with err.
func (b *Bus) AttachUnopenable(err error) int {
	return b.add(slot{openErr: err})
}

func (b *Bus) add(s slot) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots = append(b.slots, s)

	return len(b.slots) - 1
}

// Chip returns the chip at a device id, or nil.
func (b *Bus) Chip(id int) *Chip {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id < 0 || id >= len(b.slots) {
		return nil
	}

	return b.slots[id].chip
}

// Scan implements transport.Bus.
func (b *Bus) Scan() ([]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int, len(b.slots))
	for i := range ids {
		ids[i] = i
	}

	return ids, nil
}

// Open implements transport.Bus.
func (b *Bus) Open(id int) (transport.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id < 0 || id >= len(b.slots) {
		return nil, chiperr.Open(id, chiperr.ErrNotPresent)
	}

	s := b.slots[id]
	if s.openErr != nil {
		return nil, chiperr.Open(id, s.openErr)
	}

	h := &handle{chip: s.chip}

	if !s.noInfo {
		h.info = transport.DeviceInfo{
			ID:         id,
			BusAddress: fmt.Sprintf("0000:%02x:00.0", id+1),
			VendorID:   uint16(s.chip.tag),
			DeviceID:   uint16(s.chip.tag >> 16),
			BarSize:    BarSize,
			Driver:     "simchip",
		}
		h.hasInfo = true
	}

	return h, nil
}

// handle is an opened simulated device.
type handle struct {
	chip    *Chip
	info    transport.DeviceInfo
	hasInfo bool
	closed  bool
}

func (h *handle) check(off uint32, n int) error {
	if h.closed {
		return os.ErrClosed
	}

	if err := transport.CheckAligned(uint64(off), n); err != nil {
		return err
	}

	if uint64(off)+uint64(n) > BarSize {
		return fmt.Errorf("access of %d bytes at 0x%x beyond the bar", n, off)
	}

	return nil
}

func (h *handle) ReadWord(off uint32) (uint32, error) {
	if err := h.check(off, 4); err != nil {
		return 0, err
	}

	h.chip.lock()
	defer h.chip.unlock()

	return h.chip.barRead(off)
}

func (h *handle) WriteWord(off uint32, v uint32) error {
	if err := h.check(off, 4); err != nil {
		return err
	}

	h.chip.lock()
	defer h.chip.unlock()

	return h.chip.barWrite(off, v)
}

func (h *handle) ReadBlock(off uint32, buf []byte) error {
	if err := h.check(off, len(buf)); err != nil {
		return err
	}

	h.chip.lock()
	defer h.chip.unlock()

	for i := 0; i < len(buf); i += 4 {
		v, err := h.chip.barRead(off + uint32(i))
		if err != nil {
			return err
		}

		transport.PutWord(buf[i:], v)
	}

	return nil
}

func (h *handle) WriteBlock(off uint32, buf []byte) error {
	if err := h.check(off, len(buf)); err != nil {
		return err
	}

	h.chip.lock()
	defer h.chip.unlock()

	for i := 0; i < len(buf); i += 4 {
		if err := h.chip.barWrite(off+uint32(i), transport.Word(buf[i:])); err != nil {
			return err
		}
	}

	return nil
}

func (h *handle) Info() (transport.DeviceInfo, bool) {
	return h.info, h.hasInfo
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}
