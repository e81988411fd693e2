package transport

import (
	"fmt"
	"math"

	"github.com/sarchlab/chiplink/chiperr"
)

// Accessor gives byte-exact access to a Handle at any offset.
type Accessor struct {
	h  Handle
	id int
}

// NewAccessor wraps an opened handle. The id is used in errors.
func NewAccessor(h Handle, id int) *Accessor {
	return &Accessor{h: h, id: id}
}

// Handle returns the wrapped handle.
func (a *Accessor) Handle() Handle {
	return a.h
}

// ID returns the bus id of the device.
func (a *Accessor) ID() int {
	return a.id
}

// Info forwards to the handle.
func (a *Accessor) Info() (DeviceInfo, bool) {
	return a.h.Info()
}

// Close closes the handle.
func (a *Accessor) Close() error {
	return a.h.Close()
}

// ReadAligned implements Aligned.
func (a *Accessor) ReadAligned(off uint64, buf []byte) error {
	if off+uint64(len(buf)) > math.MaxUint32+1 {
		return fmt.Errorf("read of %d bytes at 0x%x leaves the bar", len(buf), off)
	}

	if len(buf) == 4 {
		v, err := a.h.ReadWord(uint32(off))
		if err != nil {
			return err
		}

		PutWord(buf, v)

		return nil
	}

	return a.h.ReadBlock(uint32(off), buf)
}

// WriteAligned implements Aligned.
func (a *Accessor) WriteAligned(off uint64, buf []byte) error {
	if off+uint64(len(buf)) > math.MaxUint32+1 {
		return fmt.Errorf("write of %d bytes at 0x%x leaves the bar", len(buf), off)
	}

	if len(buf) == 4 {
		return a.h.WriteWord(uint32(off), Word(buf))
	}

	return a.h.WriteBlock(uint32(off), buf)
}

func (a *Accessor) fail(op string, off uint32, err error) error {
	return chiperr.Transport(op, uint64(off), err).WithDevice(a.id)
}

// Read32 returns the four bytes at off, which need not be aligned.
func (a *Accessor) Read32(off uint32) (uint32, error) {
	buf := make([]byte, 4)
	if err := ReadUnaligned(a, uint64(off), buf); err != nil {
		return 0, a.fail("read32", off, err)
	}

	return Word(buf), nil
}

// Write32 writes the four bytes of v at off, which need not be aligned.
func (a *Accessor) Write32(off uint32, v uint32) error {
	buf := make([]byte, 4)
	PutWord(buf, v)

	if err := WriteUnaligned(a, uint64(off), buf); err != nil {
		return a.fail("write32", off, err)
	}

	return nil
}

// ReadBlock fills buf from off.
func (a *Accessor) ReadBlock(off uint32, buf []byte) error {
	if err := ReadUnaligned(a, uint64(off), buf); err != nil {
		return a.fail("read block", off, err)
	}

	return nil
}

// WriteBlock writes buf at off.
func (a *Accessor) WriteBlock(off uint32, buf []byte) error {
	if err := WriteUnaligned(a, uint64(off), buf); err != nil {
		return a.fail("write block", off, err)
	}

	return nil
}
