// Package transport is the boundary to the raw PCI driver. The driver moves
// aligned 32-bit words; Accessor rebuilds byte-exact access at any offset on
// top of it.
package transport

import (
	"errors"
	"fmt"
)

// DeviceInfo describes a device as the bus sees it.
type DeviceInfo struct {
	ID         int
	BusAddress string
	VendorID   uint16
	DeviceID   uint16
	BarSize    uint64
	Driver     string
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%d@%s [%04x:%04x]",
		d.ID, d.BusAddress, d.VendorID, d.DeviceID)
}

// A Bus enumerates and opens devices.
type Bus interface {
	// Scan lists the device ids present on the bus.
	Scan() ([]int, error)

	// Open claims a device.
	Open(id int) (Handle, error)
}

// A Handle is an opened device. Offsets are BAR byte offsets. Every offset
// must be a multiple of 4 and every block length a multiple of 4; the
// handle does not correct alignment.
//
// A Handle performs no locking.
type Handle interface {
	ReadWord(off uint32) (uint32, error)
	WriteWord(off uint32, v uint32) error
	ReadBlock(off uint32, buf []byte) error
	WriteBlock(off uint32, buf []byte) error

	// Info returns what the handle knows about itself, if anything.
	Info() (DeviceInfo, bool)

	Close() error
}

// ErrMisaligned is returned by handles given an offset or length that is not
// word aligned.
var ErrMisaligned = errors.New("misaligned access")

// CheckAligned returns ErrMisaligned unless both off and n are multiples of
// 4.
func CheckAligned(off uint64, n int) error {
	if off%4 != 0 || n%4 != 0 {
		return fmt.Errorf("%w: offset 0x%x length %d", ErrMisaligned, off, n)
	}

	return nil
}
