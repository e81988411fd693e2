//go:build linux

// Package sysfs binds the transport boundary to Linux PCI sysfs. Devices are
// found under /sys/bus/pci/devices and their first BAR is mapped from
// resource0.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/transport"
	"golang.org/x/sys/unix"
)

// DefaultRoot is where Linux lists PCI devices.
const DefaultRoot = "/sys/bus/pci/devices"

// Bus enumerates accelerator functions under a sysfs root. Device ids are
// positions in the bus-address order of the last scan.
type Bus struct {
	root     string
	vendorID uint16
	devices  []string
}

// NewBus creates a bus over root. An empty root means DefaultRoot.
func NewBus(root string) *Bus {
	if root == "" {
		root = DefaultRoot
	}

	return &Bus{root: root, vendorID: arch.VendorID}
}

// Scan implements transport.Bus.
func (b *Bus) Scan() ([]int, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read pci devices: %w", err)
	}

	b.devices = b.devices[:0]

	for _, e := range entries {
		vendor, err := readHex(filepath.Join(b.root, e.Name(), "vendor"))
		if err != nil {
			continue
		}

		if uint16(vendor) != b.vendorID {
			continue
		}

		b.devices = append(b.devices, e.Name())
	}

	sort.Strings(b.devices)

	ids := make([]int, len(b.devices))
	for i := range ids {
		ids[i] = i
	}

	return ids, nil
}

// Open implements transport.Bus. It maps the whole of resource0.
func (b *Bus) Open(id int) (transport.Handle, error) {
	if id < 0 || id >= len(b.devices) {
		return nil, chiperr.Open(id, chiperr.ErrNotPresent)
	}

	busAddr := b.devices[id]
	dir := filepath.Join(b.root, busAddr)

	info, err := readInfo(dir)
	if err != nil {
		return nil, chiperr.Open(id, err)
	}

	info.ID = id
	info.BusAddress = busAddr

	f, err := os.OpenFile(filepath.Join(dir, "resource0"), os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, chiperr.Open(id, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, chiperr.Open(id, err)
	}

	if stat.Size() == 0 {
		f.Close()
		return nil, chiperr.Open(id, errors.New("resource0 is empty"))
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(stat.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, chiperr.Open(id, err)
	}

	info.BarSize = uint64(len(mem))

	return &handle{f: f, mem: mem, info: info}, nil
}

func readInfo(dir string) (transport.DeviceInfo, error) {
	var info transport.DeviceInfo

	vendor, err := readHex(filepath.Join(dir, "vendor"))
	if err != nil {
		return info, err
	}

	device, err := readHex(filepath.Join(dir, "device"))
	if err != nil {
		return info, err
	}

	info.VendorID = uint16(vendor)
	info.DeviceID = uint16(device)

	if target, err := os.Readlink(filepath.Join(dir, "driver")); err == nil {
		info.Driver = filepath.Base(target)
	}

	return info, nil
}

func readHex(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	s := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")

	return strconv.ParseUint(s, 16, 16)
}

type handle struct {
	f    *os.File
	mem  []byte
	info transport.DeviceInfo
}

func (h *handle) check(off uint32, n int) error {
	if h.mem == nil {
		return os.ErrClosed
	}

	if err := transport.CheckAligned(uint64(off), n); err != nil {
		return err
	}

	if uint64(off)+uint64(n) > uint64(len(h.mem)) {
		return fmt.Errorf("access of %d bytes at 0x%x beyond bar of 0x%x bytes",
			n, off, len(h.mem))
	}

	return nil
}

// Register accesses must be single 32-bit loads and stores.
func (h *handle) word(off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&h.mem[off]))
}

func (h *handle) ReadWord(off uint32) (uint32, error) {
	if err := h.check(off, 4); err != nil {
		return 0, err
	}

	return atomic.LoadUint32(h.word(off)), nil
}

func (h *handle) WriteWord(off uint32, v uint32) error {
	if err := h.check(off, 4); err != nil {
		return err
	}

	atomic.StoreUint32(h.word(off), v)

	return nil
}

func (h *handle) ReadBlock(off uint32, buf []byte) error {
	if err := h.check(off, len(buf)); err != nil {
		return err
	}

	for i := 0; i < len(buf); i += 4 {
		transport.PutWord(buf[i:], atomic.LoadUint32(h.word(off+uint32(i))))
	}

	return nil
}

func (h *handle) WriteBlock(off uint32, buf []byte) error {
	if err := h.check(off, len(buf)); err != nil {
		return err
	}

	for i := 0; i < len(buf); i += 4 {
		atomic.StoreUint32(h.word(off+uint32(i)), transport.Word(buf[i:]))
	}

	return nil
}

func (h *handle) Info() (transport.DeviceInfo, bool) {
	return h.info, true
}

func (h *handle) Close() error {
	if h.mem == nil {
		return nil
	}

	err := unix.Munmap(h.mem)
	h.mem = nil

	if cerr := h.f.Close(); err == nil {
		err = cerr
	}

	return err
}
