package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/hooking"
)

// A ProgressBar tracks a long operation, such as a scan or a mesh walk.
type ProgressBar struct {
	sync.Mutex
	ID        string
	Name      string
	StartTime time.Time
	Total     uint64
	Finished  uint64
	Failed    uint64
}

// IncrementFinished adds to the finished items.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// IncrementFailed adds to the failed items. Failed items also count as
// finished.
func (b *ProgressBar) IncrementFailed(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Failed += amount
	b.Finished += amount
}

// Func advances the bar on every device a scanner settles.
func (b *ProgressBar) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case detect.HookPosDeviceVerified:
		b.IncrementFinished(1)
	case detect.HookPosDeviceSkipped:
		b.IncrementFailed(1)
	}
}

type progressRsp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
	Failed    uint64    `json:"failed"`
}

func (b *ProgressBar) snapshot() progressRsp {
	b.Lock()
	defer b.Unlock()

	return progressRsp{
		ID:        b.ID,
		Name:      b.Name,
		StartTime: b.StartTime,
		Total:     b.Total,
		Finished:  b.Finished,
		Failed:    b.Failed,
	}
}
