package tracing

import (
	"fmt"

	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/hooking"
)

// deviceLabel names the bus device behind the interface raising a hook.
// Interfaces that reach a chip through another one have no label.
func deviceLabel(d hooking.Hookable) string {
	i, ok := d.(chip.Interface)
	if !ok {
		return ""
	}

	info, ok := i.DeviceInfo()
	if !ok {
		return ""
	}

	return fmt.Sprintf("dev%d", info.ID)
}

func recordLabel(rec *detect.Record) string {
	if rec.Remote != nil {
		return rec.Remote.Chip.String()
	}

	return fmt.Sprintf("dev%d", rec.ID)
}
