package chip

import (
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/idgen"
)

// HookPosBeforeAccess fires before an access reaches the bus. The item is an
// *Access.
var HookPosBeforeAccess = &hooking.HookPos{Name: "Before Access"}

// HookPosAfterAccess fires when an access completes. The item is the same
// *Access and the detail is the error, if any.
var HookPosAfterAccess = &hooking.HookPos{Name: "After Access"}

// AccessOp is the kind of an access.
type AccessOp int

// The accesses an Interface performs.
const (
	OpAxiRead AccessOp = iota
	OpAxiWrite
	OpNocRead
	OpNocWrite
	OpNocBroadcast
	OpEthNocRead
	OpEthNocWrite
	OpEthNocBroadcast
)

var opNames = map[AccessOp]string{
	OpAxiRead:         "axi read",
	OpAxiWrite:        "axi write",
	OpNocRead:         "noc read",
	OpNocWrite:        "noc write",
	OpNocBroadcast:    "noc broadcast",
	OpEthNocRead:      "eth noc read",
	OpEthNocWrite:     "eth noc write",
	OpEthNocBroadcast: "eth noc broadcast",
}

func (o AccessOp) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}

	return fmt.Sprintf("op(%d)", int(o))
}

// IsWrite reports whether the access changes chip state.
func (o AccessOp) IsWrite() bool {
	switch o {
	case OpAxiRead, OpNocRead, OpEthNocRead:
		return false
	default:
		return true
	}
}

// Access describes one operation on an Interface.
type Access struct {
	ID     string
	Op     AccessOp
	Kind   Kind
	Axi    addr.AxiAddress
	Noc    addr.NocAddress
	Target *addr.RemoteTarget
	Len    int

	// Data is the caller's buffer. It holds the read bytes once the after
	// hook fires.
	Data []byte
}

// Where renders the address of the access.
func (a *Access) Where() string {
	switch a.Op {
	case OpAxiRead, OpAxiWrite:
		return a.Axi.String()
	case OpNocBroadcast:
		return fmt.Sprintf("noc%d:*:0x%x", a.Noc.Noc, a.Noc.Offset)
	case OpEthNocBroadcast:
		return fmt.Sprintf("%s noc%d:*:0x%x", a.Target, a.Noc.Noc, a.Noc.Offset)
	case OpEthNocRead, OpEthNocWrite:
		return fmt.Sprintf("%s %s", a.Target, a.Noc)
	default:
		return a.Noc.String()
	}
}

func (a *Access) String() string {
	return fmt.Sprintf("%s %s %s %d bytes", a.Kind, a.Op, a.Where(), a.Len)
}

// hookedBase is embedded by every Interface implementation.
type hookedBase struct {
	hooking.HookableBase
	kind Kind
}

func (b *hookedBase) Kind() Kind {
	return b.kind
}

func (b *hookedBase) sealed() {}

// traced runs do between the access hooks. The access is built only when a
// hook is attached.
func (b *hookedBase) traced(
	dom hooking.Hookable,
	fill func(*Access),
	do func() error,
) error {
	if b.NumHooks() == 0 {
		return do()
	}

	acc := &Access{ID: idgen.Get().Generate(), Kind: b.kind}
	fill(acc)

	b.InvokeHook(hooking.HookCtx{
		Domain: dom,
		Pos:    HookPosBeforeAccess,
		Item:   acc,
	})

	err := do()

	b.InvokeHook(hooking.HookCtx{
		Domain: dom,
		Pos:    HookPosAfterAccess,
		Item:   acc,
		Detail: err,
	})

	return err
}

func axiAccess(op AccessOp, a addr.AxiAddress, buf []byte) func(*Access) {
	return func(acc *Access) {
		acc.Op = op
		acc.Axi = a
		acc.Len = len(buf)
		acc.Data = buf
	}
}

func nocAccess(op AccessOp, a addr.NocAddress, buf []byte) func(*Access) {
	return func(acc *Access) {
		acc.Op = op
		acc.Noc = a
		acc.Len = len(buf)
		acc.Data = buf
	}
}

func ethAccess(
	op AccessOp, t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) func(*Access) {
	return func(acc *Access) {
		acc.Op = op
		acc.Target = &t
		acc.Noc = a
		acc.Len = len(buf)
		acc.Data = buf
	}
}
