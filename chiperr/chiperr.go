// Package chiperr defines the error taxonomy shared by every layer that talks
// to a chip: opening devices, bus transactions, addressing, the ARC mailbox
// protocol and architecture detection.
package chiperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

// The failure kinds.
const (
	KindUnknown Kind = iota

	// KindOpen means a device was enumerated but could not be opened.
	KindOpen

	// KindTransport means a bus transaction itself failed.
	KindTransport

	// KindAddressing means a NOC coordinate, register name or Ethernet route
	// is out of range or cannot be resolved.
	KindAddressing

	// KindProtocol means an ARC exchange timed out or was rejected.
	KindProtocol

	// KindUnknownArch means the architecture tag does not match any known
	// generation.
	KindUnknownArch

	// KindArchMismatch means a typed view was requested for a chip of a
	// different architecture.
	KindArchMismatch

	// KindBootFS means a boot filesystem entry is absent or malformed.
	KindBootFS
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindTransport:
		return "transport"
	case KindAddressing:
		return "addressing"
	case KindProtocol:
		return "protocol"
	case KindUnknownArch:
		return "unknown architecture"
	case KindArchMismatch:
		return "architecture mismatch"
	case KindBootFS:
		return "boot fs"
	default:
		return "unknown"
	}
}

// Sentinel causes. Match them with errors.Is.
var (
	ErrTimeout         = errors.New("timed out")
	ErrRejected        = errors.New("rejected by firmware")
	ErrBusy            = errors.New("another exchange is outstanding")
	ErrLinkDown        = errors.New("ethernet link down")
	ErrOutOfGrid       = errors.New("coordinate outside of the chip grid")
	ErrInvalidNoc      = errors.New("invalid noc id")
	ErrUnknownRegister = errors.New("unknown register")
	ErrBroadcastRead   = errors.New("broadcast has no read semantics")
	ErrShortTransfer   = errors.New("short transfer")
	ErrNotPresent      = errors.New("device not present")
	ErrRouteOverflow   = errors.New("route field out of range")
	ErrTagAbsent       = errors.New("tag not present")
	ErrMalformed       = errors.New("malformed payload")
)

// NoDevice marks an error that is not attached to a device.
const NoDevice = -1

// Error is the error type returned by every fallible public operation.
type Error struct {
	Kind Kind

	// Op names the failing operation, e.g. "axi read" or "arc msg".
	Op string

	// DeviceID is the bus device id, or NoDevice.
	DeviceID int

	// Addr is the address involved, when there is one.
	Addr    uint64
	HasAddr bool

	// Code is the underlying transport or firmware code, when there is one.
	Code    int64
	HasCode bool

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())
	b.WriteString(" error")

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.DeviceID != NoDevice {
		fmt.Fprintf(&b, " on device %d", e.DeviceID)
	}

	if e.HasAddr {
		fmt.Fprintf(&b, " at 0x%x", e.Addr)
	}

	if e.HasCode {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		DeviceID: NoDevice,
		Err:      cause,
	}
}

// WithDevice attaches a device id.
func (e *Error) WithDevice(id int) *Error {
	e.DeviceID = id
	return e
}

// WithAddr attaches an address.
func (e *Error) WithAddr(a uint64) *Error {
	e.Addr = a
	e.HasAddr = true

	return e
}

// WithCode attaches an underlying code.
func (e *Error) WithCode(c int64) *Error {
	e.Code = c
	e.HasCode = true

	return e
}

// Open creates an Open error.
func Open(id int, cause error) *Error {
	return New(KindOpen, "open", cause).WithDevice(id)
}

// Transport creates a Transport error for the given operation and address.
func Transport(op string, a uint64, cause error) *Error {
	return New(KindTransport, op, cause).WithAddr(a)
}

// Addressing creates an Addressing error.
func Addressing(op string, cause error) *Error {
	return New(KindAddressing, op, cause)
}

// Protocol creates a Protocol error.
func Protocol(op string, cause error) *Error {
	return New(KindProtocol, op, cause)
}

// UnknownArch creates an UnknownArchitecture error carrying the raw tag.
func UnknownArch(id int, tag uint32) *Error {
	return New(KindUnknownArch, "detect", nil).
		WithDevice(id).
		WithCode(int64(tag))
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Attach fills in the device id on err if it is a *Error without one. Other
// errors are wrapped as transport errors.
func Attach(err error, id int) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		if e.DeviceID == NoDevice {
			e.DeviceID = id
		}

		return err
	}

	return New(KindTransport, "", err).WithDevice(id)
}
