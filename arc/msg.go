package arc

import "fmt"

// Opcodes understood by the ARC firmware.
const (
	OpNop                   uint16 = 0x11
	OpGetSpiDumpAddr        uint16 = 0x29
	OpGetSmbusTelemetryAddr uint16 = 0x2c
	OpArcGoToSleep          uint16 = 0x55
	OpTriggerReset          uint16 = 0x56
	OpTest                  uint16 = 0x90
	OpGetFwVersion          uint16 = 0xb9
)

// MaxOpcode is the largest opcode the mailbox can carry.
const MaxOpcode = 0xff

// WaitPolicy says whether Send waits for the firmware to answer.
type WaitPolicy int

// Wait policies.
const (
	Wait WaitPolicy = iota
	NoWait
)

// Msg is one request to the firmware.
type Msg struct {
	Opcode uint16
	Args   [2]uint16
	Wait   WaitPolicy
}

// PackedArg is the argument word: Args[0] in the low half, Args[1] in the
// high half.
func (m Msg) PackedArg() uint32 {
	return uint32(m.Args[0]) | uint32(m.Args[1])<<16
}

var opNames = map[uint16]string{
	OpNop:                   "nop",
	OpGetSpiDumpAddr:        "get-spi-dump-addr",
	OpGetSmbusTelemetryAddr: "get-smbus-telemetry-addr",
	OpArcGoToSleep:          "arc-go-to-sleep",
	OpTriggerReset:          "trigger-reset",
	OpTest:                  "test",
	OpGetFwVersion:          "get-fw-version",
}

func (m Msg) String() string {
	name, ok := opNames[m.Opcode]
	if !ok {
		name = fmt.Sprintf("raw-0x%02x", m.Opcode)
	}

	return fmt.Sprintf("%s(0x%x, 0x%x)", name, m.Args[0], m.Args[1])
}

// Nop asks the firmware to do nothing and answer.
func Nop() Msg {
	return Msg{Opcode: OpNop}
}

// Test asks the firmware to answer with arg+1. It is used as a liveness
// probe.
func Test(arg uint16) Msg {
	return Msg{Opcode: OpTest, Args: [2]uint16{arg, 0}}
}

// GetSpiDumpAddr asks where the firmware dumps SPI reads.
func GetSpiDumpAddr() Msg {
	return Msg{Opcode: OpGetSpiDumpAddr}
}

// GetSmbusTelemetryAddr asks where the telemetry block lives.
func GetSmbusTelemetryAddr() Msg {
	return Msg{Opcode: OpGetSmbusTelemetryAddr}
}

// FwType selects the firmware GetFwVersion reports on.
type FwType uint16

// Firmware types.
const (
	FwArc FwType = iota
	FwEth
)

// GetFwVersion asks for the version of a firmware.
func GetFwVersion(fw FwType) Msg {
	return Msg{Opcode: OpGetFwVersion, Args: [2]uint16{uint16(fw), 0}}
}

// ArcGoToSleep asks the ARC core to idle.
func ArcGoToSleep() Msg {
	return Msg{Opcode: OpArcGoToSleep}
}

// TriggerReset resets the chip. The firmware never answers it.
func TriggerReset() Msg {
	return Msg{Opcode: OpTriggerReset, Wait: NoWait}
}

// Raw builds a message from an opcode and its two arguments.
func Raw(opcode, arg0, arg1 uint16) Msg {
	return Msg{Opcode: opcode, Args: [2]uint16{arg0, arg1}}
}

// ResponseKind tells an answered message from one that was only posted.
type ResponseKind int

// Response kinds.
const (
	Ok ResponseKind = iota
	OkNoWait
)

func (k ResponseKind) String() string {
	if k == OkNoWait {
		return "ok-no-wait"
	}

	return "ok"
}

// Response is the answer to a Msg. RC and Arg are zero for OkNoWait.
type Response struct {
	Kind ResponseKind
	RC   uint16
	Arg  uint32
}

func (r Response) String() string {
	if r.Kind == OkNoWait {
		return r.Kind.String()
	}

	return fmt.Sprintf("rc=%d arg=0x%x", r.RC, r.Arg)
}
