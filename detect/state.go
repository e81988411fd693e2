// Package detect turns a bus enumeration into verified chip handles. Each
// device moves through Enumerated, Partial and Verified, or ends in Failed;
// every transition is a separate function.
package detect

import (
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/device"
	"github.com/sarchlab/chiplink/transport"
)

// State is how far detection got with a device.
type State int

// Detection states.
const (
	Enumerated State = iota
	Partial
	Verified
	Failed
)

func (s State) String() string {
	switch s {
	case Enumerated:
		return "enumerated"
	case Partial:
		return "partial"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason explains a Failed state.
type Reason int

// Failure reasons.
const (
	ReasonNone Reason = iota
	ReasonOpen
	ReasonUnknownArch
	ReasonArchMismatch
	ReasonTransport
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonOpen:
		return "open"
	case ReasonUnknownArch:
		return "unknown architecture"
	case ReasonArchMismatch:
		return "architecture mismatch"
	case ReasonTransport:
		return "transport"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Record is the detection state of one device.
type Record struct {
	// ID is the bus id. Remote chips have chiperr.NoDevice.
	ID int

	// Remote is the mesh target of a chip found by WalkMesh.
	Remote *addr.RemoteTarget

	State  State
	Reason Reason
	Err    error

	Arch    arch.Arch
	Tag     uint32
	Info    transport.DeviceInfo
	HasInfo bool

	// FirmwareUnavailable is set on Verified chips whose ARC did not
	// answer the liveness probe.
	FirmwareUnavailable bool

	// Chip is set in the Partial and Verified states.
	Chip *device.Chip
}

func (r Record) String() string {
	who := fmt.Sprintf("device %d", r.ID)
	if r.Remote != nil {
		who = r.Remote.String()
	}

	switch r.State {
	case Failed:
		return fmt.Sprintf("%s: %s (%s): %v", who, r.State, r.Reason, r.Err)
	case Verified:
		s := fmt.Sprintf("%s: %s %s", who, r.State, r.Arch)
		if r.FirmwareUnavailable {
			s += " (firmware unavailable)"
		}

		return s
	default:
		return fmt.Sprintf("%s: %s", who, r.State)
	}
}

func (r Record) fail(reason Reason, err error) Record {
	if r.Chip != nil {
		r.Chip.Close()
		r.Chip = nil
	}

	r.State = Failed
	r.Reason = reason
	r.Err = err

	return r
}
