package simchip

import (
	"errors"

	"github.com/sarchlab/chiplink/transport"
)

// ErrBeyondCapacity is returned for accesses past the end of a Storage.
var ErrBeyondCapacity = errors.New("accessing address beyond the storage capacity")

// A Storage is a sparse byte array. Memory is allocated in units the first
// time a unit is touched; untouched units read as the fill byte.
type Storage struct {
	unitSize uint64
	capacity uint64
	fill     byte
	data     map[uint64][]byte
}

// NewStorage creates a storage of the given capacity whose bytes start as
// fill.
func NewStorage(capacity uint64, fill byte) *Storage {
	return &Storage{
		unitSize: 4096,
		capacity: capacity,
		fill:     fill,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the number of addressable bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) unit(base uint64, create bool) []byte {
	u, ok := s.data[base]
	if ok || !create {
		return u
	}

	u = make([]byte, s.unitSize)
	if s.fill != 0 {
		for i := range u {
			u[i] = s.fill
		}
	}

	s.data[base] = u

	return u
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return baseAddr, inUnitAddr
}

func (s *Storage) check(addr uint64, n int) error {
	if addr > s.capacity || uint64(n) > s.capacity-addr {
		return ErrBeyondCapacity
	}

	return nil
}

// Read returns n bytes starting at addr.
func (s *Storage) Read(addr uint64, n int) ([]byte, error) {
	if err := s.check(addr, n); err != nil {
		return nil, err
	}

	res := make([]byte, n)
	done := 0

	for done < n {
		base, in := s.parseAddress(addr + uint64(done))
		chunk := min(uint64(n-done), s.unitSize-in)

		if u := s.unit(base, false); u != nil {
			copy(res[done:], u[in:in+chunk])
		} else if s.fill != 0 {
			for i := range res[done : done+int(chunk)] {
				res[done+i] = s.fill
			}
		}

		done += int(chunk)
	}

	return res, nil
}

// Write stores data at addr.
func (s *Storage) Write(addr uint64, data []byte) error {
	if err := s.check(addr, len(data)); err != nil {
		return err
	}

	done := 0
	for done < len(data) {
		base, in := s.parseAddress(addr + uint64(done))
		chunk := min(uint64(len(data)-done), s.unitSize-in)

		u := s.unit(base, true)
		copy(u[in:in+chunk], data[done:done+int(chunk)])

		done += int(chunk)
	}

	return nil
}

// Word reads a little-endian word.
func (s *Storage) Word(addr uint64) (uint32, error) {
	b, err := s.Read(addr, 4)
	if err != nil {
		return 0, err
	}

	return transport.Word(b), nil
}

// SetWord writes a little-endian word.
func (s *Storage) SetWord(addr uint64, v uint32) error {
	b := make([]byte, 4)
	transport.PutWord(b, v)

	return s.Write(addr, b)
}
