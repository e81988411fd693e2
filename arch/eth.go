package arch

// Offsets in the L1 memory of every Ethernet core. The Ethernet firmware
// publishes the link state and the coordinates of both ends of the link in
// a parameter block and serves remote NOC requests from a command queue.
const (
	EthLinkStatus  uint64 = 0x1ed4
	EthLocalCoord  uint64 = 0x1108
	EthRemoteCoord uint64 = 0x1110

	// EthLinkTrained is the value of EthLinkStatus once the link trained.
	EthLinkTrained uint32 = 6
)

// Layout of the Ethernet command queue. Requests and responses each use a
// ring of EthQueueSlots slots preceded by a write pointer and a read
// pointer. Pointers count up without wrapping; the slot is ptr %
// EthQueueSlots.
const (
	EthReqQueue   uint64 = 0x11080
	EthRespQueue  uint64 = 0x11180
	EthQueueSlots        = 4
	EthSlotBytes         = 32
	EthSlotBase   uint64 = 0x10

	// EthDataBuf is where block payloads are staged, in both directions.
	EthDataBuf     uint64 = 0x12000
	EthDataBufSize        = 1024
)

// Word indices inside a command slot.
const (
	EthSlotSysLo = iota
	EthSlotSysHi
	EthSlotData
	EthSlotFlags
	EthSlotLength
)

// Command flags.
const (
	EthCmdRead      uint32 = 1 << 0
	EthCmdWrite     uint32 = 1 << 1
	EthCmdBlock     uint32 = 1 << 2
	EthCmdBroadcast uint32 = 1 << 3
	EthCmdNoc1      uint32 = 1 << 4

	// Response-only flags.
	EthRespTimeout uint32 = 1 << 30
	EthRespError   uint32 = 1 << 31
)

// EthSlotAddr returns the L1 offset of a slot in a queue.
func EthSlotAddr(queue uint64, ptr uint32) uint64 {
	return queue + EthSlotBase + uint64(ptr%EthQueueSlots)*EthSlotBytes
}
