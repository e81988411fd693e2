package tracing

import (
	"sync"
	"time"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/datarecording"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/hooking"
)

// Tables written by DBTracer.
const (
	AccessTable   = "chip_access"
	ExchangeTable = "arc_exchange"
	DetectTable   = "device_detect"
)

// AccessEntry is a row of AccessTable.
type AccessEntry struct {
	ID      string `record:"index"`
	Device  string `record:"index"`
	Kind    string
	Op      string `record:"index"`
	Where   string
	Len     int
	Start   float64
	Elapsed float64
	Error   string
}

// ExchangeEntry is a row of ExchangeTable.
type ExchangeEntry struct {
	ID       string `record:"index"`
	DeviceID int    `record:"index"`
	Msg      string
	Opcode   int
	Response string
	RC       int
	Arg      uint32
	Polls    int
	Start    float64
	Elapsed  float64
	Error    string
}

// DetectEntry is a row of DetectTable.
type DetectEntry struct {
	Device              string `record:"index"`
	State               string
	Reason              string
	Arch                string
	Tag                 uint32
	FirmwareUnavailable bool
	Time                float64
	Error               string
}

// DBTracer stores accesses, ARC exchanges and detection results through a
// datarecording.Recorder.
type DBTracer struct {
	mu       sync.Mutex
	backend  datarecording.Recorder
	now      func() time.Time
	inflight map[*chip.Access]time.Time
}

// NewDBTracer creates the tables of the tracer in backend.
func NewDBTracer(backend datarecording.Recorder) *DBTracer {
	backend.CreateTable(AccessTable, AccessEntry{})
	backend.CreateTable(ExchangeTable, ExchangeEntry{})
	backend.CreateTable(DetectTable, DetectEntry{})

	return &DBTracer{
		backend:  backend,
		now:      time.Now,
		inflight: make(map[*chip.Access]time.Time),
	}
}

// WithClock replaces the time source of the tracer.
func (t *DBTracer) WithClock(now func() time.Time) *DBTracer {
	t.now = now
	return t
}

// Func records the event carried by ctx.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case chip.HookPosBeforeAccess:
		t.startAccess(ctx)
	case chip.HookPosAfterAccess:
		t.endAccess(ctx)
	case arc.HookPosMsgDone:
		t.exchange(ctx)
	case detect.HookPosDeviceSkipped, detect.HookPosDeviceVerified:
		t.detection(ctx)
	}
}

func (t *DBTracer) startAccess(ctx hooking.HookCtx) {
	acc, ok := ctx.Item.(*chip.Access)
	if !ok {
		return
	}

	t.mu.Lock()
	t.inflight[acc] = t.now()
	t.mu.Unlock()
}

func (t *DBTracer) endAccess(ctx hooking.HookCtx) {
	acc, ok := ctx.Item.(*chip.Access)
	if !ok {
		return
	}

	end := t.now()

	t.mu.Lock()
	start, found := t.inflight[acc]
	delete(t.inflight, acc)
	t.mu.Unlock()

	if !found {
		start = end
	}

	t.backend.InsertData(AccessTable, AccessEntry{
		ID:      acc.ID,
		Device:  deviceLabel(ctx.Domain),
		Kind:    acc.Kind.String(),
		Op:      acc.Op.String(),
		Where:   acc.Where(),
		Len:     acc.Len,
		Start:   seconds(start),
		Elapsed: end.Sub(start).Seconds(),
		Error:   errText(ctx.Detail),
	})
}

func (t *DBTracer) exchange(ctx hooking.HookCtx) {
	ex, ok := ctx.Item.(*arc.Exchange)
	if !ok {
		return
	}

	t.backend.InsertData(ExchangeTable, ExchangeEntry{
		ID:       ex.ID,
		DeviceID: ex.DeviceID,
		Msg:      ex.Msg.String(),
		Opcode:   int(ex.Msg.Opcode),
		Response: ex.Response.Kind.String(),
		RC:       int(ex.Response.RC),
		Arg:      ex.Response.Arg,
		Polls:    ex.Polls,
		Start:    seconds(ex.Start),
		Elapsed:  ex.Elapsed.Seconds(),
		Error:    errText(ctx.Detail),
	})
}

func (t *DBTracer) detection(ctx hooking.HookCtx) {
	rec, ok := ctx.Item.(*detect.Record)
	if !ok {
		return
	}

	e := DetectEntry{
		Device:              recordLabel(rec),
		State:               rec.State.String(),
		Arch:                rec.Arch.String(),
		Tag:                 rec.Tag,
		FirmwareUnavailable: rec.FirmwareUnavailable,
		Time:                seconds(t.now()),
		Error:               errText(rec.Err),
	}

	if rec.State == detect.Failed {
		e.Reason = rec.Reason.String()
	}

	t.backend.InsertData(DetectTable, e)
}

// Flush writes what the backend buffers.
func (t *DBTracer) Flush() error {
	return t.backend.Flush()
}

func seconds(at time.Time) float64 {
	return float64(at.UnixNano()) / 1e9
}

func errText(detail any) string {
	err, ok := detail.(error)
	if !ok || err == nil {
		return ""
	}

	return err.Error()
}
