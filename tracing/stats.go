package tracing

import (
	"sort"
	"sync"
	"time"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/hooking"
)

// OpStats are the counters of one kind of access.
type OpStats struct {
	Op     string
	Count  uint64
	Bytes  uint64
	Errors uint64
}

// Stats is a snapshot of a StatsTracer.
type Stats struct {
	Ops []OpStats

	ArcMsgs    uint64
	ArcErrors  uint64
	ArcPolls   uint64
	ArcElapsed time.Duration
}

// StatsTracer counts accesses and ARC exchanges. It is safe to attach one
// tracer to many chips.
type StatsTracer struct {
	mu    sync.Mutex
	ops   map[chip.AccessOp]*OpStats
	stats Stats
}

// NewStatsTracer creates an empty StatsTracer.
func NewStatsTracer() *StatsTracer {
	return &StatsTracer{ops: make(map[chip.AccessOp]*OpStats)}
}

// Func updates the counters.
func (t *StatsTracer) Func(ctx hooking.HookCtx) {
	failed := ctx.Detail != nil

	switch ctx.Pos {
	case chip.HookPosAfterAccess:
		acc, ok := ctx.Item.(*chip.Access)
		if !ok {
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()

		s, found := t.ops[acc.Op]
		if !found {
			s = &OpStats{Op: acc.Op.String()}
			t.ops[acc.Op] = s
		}

		s.Count++

		if failed {
			s.Errors++
		} else {
			s.Bytes += uint64(acc.Len)
		}
	case arc.HookPosMsgDone:
		ex, ok := ctx.Item.(*arc.Exchange)
		if !ok {
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()

		t.stats.ArcMsgs++
		t.stats.ArcPolls += uint64(ex.Polls)
		t.stats.ArcElapsed += ex.Elapsed

		if failed {
			t.stats.ArcErrors++
		}
	}
}

// Snapshot returns a copy of the counters, with the access kinds sorted by
// name.
func (t *StatsTracer) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats
	s.Ops = make([]OpStats, 0, len(t.ops))

	for _, o := range t.ops {
		s.Ops = append(s.Ops, *o)
	}

	sort.Slice(s.Ops, func(i, j int) bool { return s.Ops[i].Op < s.Ops[j].Op })

	return s
}
