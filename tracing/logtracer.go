// Package tracing turns the hooks raised by chips, ARC clients and scanners
// into logs, recordings and counters.
package tracing

import (
	"log"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/hooking"
)

// LogTracer prints completed accesses, ARC exchanges and detection results.
type LogTracer struct {
	hooking.LogHookBase

	// ErrorsOnly limits the output to failed operations and skipped
	// devices.
	ErrorsOnly bool
}

// NewLogTracer returns a LogTracer that writes into logger.
func NewLogTracer(logger *log.Logger) *LogTracer {
	h := new(LogTracer)
	h.Logger = logger

	return h
}

// Func writes one line per event.
func (h *LogTracer) Func(ctx hooking.HookCtx) {
	err, _ := ctx.Detail.(error)
	if h.ErrorsOnly && err == nil && ctx.Pos != detect.HookPosDeviceSkipped {
		return
	}

	switch ctx.Pos {
	case chip.HookPosAfterAccess:
		acc, ok := ctx.Item.(*chip.Access)
		if !ok {
			return
		}

		if dev := deviceLabel(ctx.Domain); dev != "" {
			h.Printf("%s %s%s", dev, acc, suffix(err))
		} else {
			h.Printf("%s%s", acc, suffix(err))
		}
	case arc.HookPosMsgDone:
		ex, ok := ctx.Item.(*arc.Exchange)
		if !ok {
			return
		}

		h.Printf("arc dev%d %s -> %s polls=%d %s%s",
			ex.DeviceID, ex.Msg, ex.Response, ex.Polls, ex.Elapsed, suffix(err))
	case detect.HookPosDeviceSkipped, detect.HookPosDeviceVerified:
		rec, ok := ctx.Item.(*detect.Record)
		if !ok {
			return
		}

		h.Printf("detect %s", rec)
	}
}

func suffix(err error) string {
	if err == nil {
		return ""
	}

	return ": " + err.Error()
}
