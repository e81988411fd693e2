package chip

import (
	"sync"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/transport"
)

// Locked serializes the operations of an interface with a mutex. Hooks are
// registered on, and fire from, the wrapped interface.
type Locked struct {
	mu    sync.Mutex
	inner Interface
}

// NewLocked wraps i. Wrapping a Locked returns it unchanged.
func NewLocked(i Interface) *Locked {
	if l, ok := i.(*Locked); ok {
		return l
	}

	return &Locked{inner: i}
}

// Inner returns the wrapped interface.
func (l *Locked) Inner() Interface {
	return l.inner
}

func (l *Locked) sealed() {}

// AcceptHook implements hooking.Hookable.
func (l *Locked) AcceptHook(hook hooking.Hook) {
	l.inner.AcceptHook(hook)
}

// NumHooks implements hooking.Hookable.
func (l *Locked) NumHooks() int {
	return l.inner.NumHooks()
}

// InvokeHook implements hooking.Hookable.
func (l *Locked) InvokeHook(ctx hooking.HookCtx) {
	l.inner.InvokeHook(ctx)
}

// Kind implements Interface.
func (l *Locked) Kind() Kind {
	return l.inner.Kind()
}

// Grid implements Interface.
func (l *Locked) Grid() addr.Grid {
	return l.inner.Grid()
}

// DeviceInfo implements Interface.
func (l *Locked) DeviceInfo() (transport.DeviceInfo, bool) {
	return l.inner.DeviceInfo()
}

// Close implements Interface.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.Close()
}

// AxiRead implements Interface.
func (l *Locked) AxiRead(a addr.AxiAddress, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.AxiRead(a, buf)
}

// AxiWrite implements Interface.
func (l *Locked) AxiWrite(a addr.AxiAddress, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.AxiWrite(a, buf)
}

// NocRead implements Interface.
func (l *Locked) NocRead(a addr.NocAddress, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.NocRead(a, buf)
}

// NocWrite implements Interface.
func (l *Locked) NocWrite(a addr.NocAddress, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.NocWrite(a, buf)
}

// NocBroadcast implements Interface.
func (l *Locked) NocBroadcast(noc addr.NocID, offset uint64, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.NocBroadcast(noc, offset, buf)
}

// EthNocRead implements Interface.
func (l *Locked) EthNocRead(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.EthNocRead(t, a, buf)
}

// EthNocWrite implements Interface.
func (l *Locked) EthNocWrite(
	t addr.RemoteTarget, a addr.NocAddress, buf []byte,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.EthNocWrite(t, a, buf)
}

// EthNocBroadcast implements Interface.
func (l *Locked) EthNocBroadcast(
	t addr.RemoteTarget, noc addr.NocID, offset uint64, buf []byte,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inner.EthNocBroadcast(t, noc, offset, buf)
}

var _ Interface = (*Locked)(nil)
