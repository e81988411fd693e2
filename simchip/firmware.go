package simchip

import (
	"github.com/sarchlab/chiplink/arc"
)

// RCUnknownMsg is the return code for opcodes the firmware does not know.
const RCUnknownMsg = 0xff

// Firmware simulates the ARC mailbox handler.
type Firmware struct {
	// Alive firmware answers messages. Dead firmware leaves the mailbox
	// untouched, so every exchange times out.
	Alive bool

	// Delay is the number of status reads before an answer lands.
	Delay int

	Version       uint32
	EthVersion    uint32
	TelemetryAddr uint32
	SpiDumpAddr   uint32

	// RC forces the return code of an opcode.
	RC map[uint16]uint16

	received []arc.Msg
	resets   int
	asleep   bool
	pending  *reply
}

type reply struct {
	status    uint32
	arg       uint32
	countdown int
}

// DefaultFirmware answers every known message immediately.
func DefaultFirmware() Firmware {
	return Firmware{
		Alive:         true,
		Version:       0x01_02_03_00,
		EthVersion:    0x06_0e_00,
		TelemetryAddr: 0x1fe8_0100,
		SpiDumpAddr:   0x1fe8_4000,
	}
}

// DeadFirmware never answers.
func DeadFirmware() Firmware {
	fw := DefaultFirmware()
	fw.Alive = false

	return fw
}

// Received lists the messages the firmware saw, answered or not.
func (f *Firmware) Received() []arc.Msg {
	return f.received
}

// Resets returns how many resets were triggered.
func (f *Firmware) Resets() int {
	return f.resets
}

// Asleep reports whether the ARC core was put to sleep.
func (f *Firmware) Asleep() bool {
	return f.asleep
}

func (f *Firmware) ring(c *Chip) {
	status, _ := c.axi.Word(uint64(c.mbStatus))
	if status&0xff00 != arc.StatusPrefix {
		return
	}

	arg, _ := c.axi.Word(uint64(c.mbArg))

	msg := arc.Raw(uint16(status&0xff), uint16(arg), uint16(arg>>16))
	f.received = append(f.received, msg)

	if !f.Alive {
		return
	}

	rc, result, answer := f.handle(msg)
	if !answer {
		return
	}

	f.pending = &reply{
		status:    uint32(rc)<<16 | uint32(msg.Opcode),
		arg:       result,
		countdown: f.Delay,
	}

	if f.Delay == 0 {
		f.deliver(c)
	}
}

func (f *Firmware) handle(msg arc.Msg) (rc uint16, result uint32, answer bool) {
	rc, forced := f.RC[msg.Opcode]

	switch msg.Opcode {
	case arc.OpNop:
	case arc.OpTest:
		result = msg.PackedArg() + 1
	case arc.OpGetSmbusTelemetryAddr:
		result = f.TelemetryAddr
	case arc.OpGetSpiDumpAddr:
		result = f.SpiDumpAddr
	case arc.OpGetFwVersion:
		result = f.Version
		if arc.FwType(msg.Args[0]) == arc.FwEth {
			result = f.EthVersion
		}
	case arc.OpArcGoToSleep:
		f.asleep = true
	case arc.OpTriggerReset:
		f.resets++
		f.asleep = false

		return 0, 0, false
	default:
		if !forced {
			rc = RCUnknownMsg
		}
	}

	return rc, result, true
}

func (f *Firmware) onStatusRead(c *Chip) {
	if f.pending == nil {
		return
	}

	f.pending.countdown--
	if f.pending.countdown <= 0 {
		f.deliver(c)
	}
}

func (f *Firmware) deliver(c *Chip) {
	c.axi.SetWord(uint64(c.mbArg), f.pending.arg)
	c.axi.SetWord(uint64(c.mbStatus), f.pending.status)
	f.pending = nil
}
