// Package hooking lets observers attach to chips, ARC clients and scanners
// without those types knowing about logging or recording.
package hooking

import "log"

// HookPos names the site a hook fires from.
type HookPos struct {
	Name string
}

// HookCtx is what a hook receives when it fires.
type HookCtx struct {
	// Domain is the object raising the hook.
	Domain Hookable

	// Pos is the site the hook fires from.
	Pos *HookPos

	// Item is the subject of the hook, e.g. an access or an ARC exchange.
	Item any

	// Detail holds optional extra data, such as the error of a failed
	// operation.
	Detail any
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	// AcceptHook registers a hook. Hooks are registered before the object is
	// shared between goroutines and are never removed.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// InvokeHook triggers the registered hooks.
	InvokeHook(ctx HookCtx)
}

// Hook is invoked by a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a function to a Hook.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase implements Hookable for embedding.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hookList {
		if isSameHook(existing, hook) {
			panic("duplicated hook")
		}
	}

	h.hookList = append(h.hookList, hook)
}

func isSameHook(a, b Hook) (same bool) {
	// Hooks built from func values are not comparable.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()

	return a == b
}

// InvokeHook triggers the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

// LogHookBase is embedded by hooks that write to a logger.
type LogHookBase struct {
	*log.Logger
}

var _ Hookable = (*HookableBase)(nil)
