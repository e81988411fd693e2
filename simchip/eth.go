package simchip

import (
	"errors"
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
)

// Port is an Ethernet core of a chip and the link leaving it.
type Port struct {
	chip    *Chip
	index   int
	core    arch.Coord
	peer    *Port
	trained bool
}

// Core returns the position of the Ethernet core.
func (p *Port) Core() arch.Coord {
	return p.core
}

// Peer returns the port at the other end of the link, or nil.
func (p *Port) Peer() *Port {
	return p.peer
}

// Trained reports whether the link is up.
func (p *Port) Trained() bool {
	return p.trained
}

// Chip returns the chip owning the port.
func (p *Port) Chip() *Chip {
	return p.chip
}

func (p *Port) l1() *Storage {
	t, _ := p.chip.tile(p.core.X, p.core.Y)
	return t
}

// publish writes the parameter block the host reads to learn the link
// state.
func (p *Port) publish() {
	l1 := p.l1()

	status := uint32(0)
	if p.trained {
		status = arch.EthLinkTrained
	}

	l1.SetWord(arch.EthLinkStatus, status)
	l1.SetWord(arch.EthLocalCoord, p.chip.ethAddr.Encode())

	remote := uint32(0)
	if p.peer != nil {
		remote = p.peer.chip.ethAddr.Encode()
	}

	l1.SetWord(arch.EthRemoteCoord, remote)
}

func merge(a, b *group) {
	if a == b {
		return
	}

	for _, c := range b.chips {
		c.group = a
		a.chips = append(a.chips, c)
	}
}

// Connect links port pa of a with port pb of b. An untrained link is
// cabled but down. Connect chips before sharing them between goroutines.
func Connect(a *Chip, pa int, b *Chip, pb int, trained bool) {
	x, y := a.ports[pa], b.ports[pb]

	x.peer, y.peer = y, x
	x.trained, y.trained = trained, trained

	merge(a.group, b.group)

	x.publish()
	y.publish()
}

// SetTrained brings a link up or down on both ends.
func (p *Port) SetTrained(trained bool) {
	p.chip.lock()
	defer p.chip.unlock()

	p.trained = trained
	p.publish()

	if p.peer != nil {
		p.peer.trained = trained
		p.peer.publish()
	}
}

// SetLinkStatus overwrites the published link status of this end only,
// e.g. with a value the firmware shows while the link is training. Traffic
// still follows Trained.
func (p *Port) SetLinkStatus(v uint32) {
	p.chip.lock()
	defer p.chip.unlock()

	p.l1().SetWord(arch.EthLinkStatus, v)
}

var errUnreachable = errors.New("chip not reachable")

// route finds the chip at dst, leaving through p. Traffic follows trained
// links only.
func (p *Port) route(dst addr.EthAddr) (*Chip, error) {
	if !p.trained || p.peer == nil {
		return nil, chiperr.ErrLinkDown
	}

	visited := map[*Chip]bool{p.chip: true}
	queue := []*Chip{p.peer.chip}
	visited[p.peer.chip] = true

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		if c.ethAddr == dst {
			return c, nil
		}

		for _, q := range c.ports {
			if !q.trained || q.peer == nil || visited[q.peer.chip] {
				continue
			}

			visited[q.peer.chip] = true
			queue = append(queue, q.peer.chip)
		}
	}

	if p.chip.ethAddr == dst {
		return p.chip, nil
	}

	return nil, fmt.Errorf("%w: %s", errUnreachable, dst)
}

type command struct {
	sysLo, sysHi, data, flags, length uint32
}

func (p *Port) readSlot(queue uint64, ptr uint32) command {
	l1 := p.l1()
	base := arch.EthSlotAddr(queue, ptr)

	w := func(i int) uint32 {
		v, _ := l1.Word(base + uint64(4*i))
		return v
	}

	return command{
		sysLo:  w(arch.EthSlotSysLo),
		sysHi:  w(arch.EthSlotSysHi),
		data:   w(arch.EthSlotData),
		flags:  w(arch.EthSlotFlags),
		length: w(arch.EthSlotLength),
	}
}

func (p *Port) writeSlot(queue uint64, ptr uint32, cmd command) {
	l1 := p.l1()
	base := arch.EthSlotAddr(queue, ptr)

	l1.SetWord(base+4*arch.EthSlotSysLo, cmd.sysLo)
	l1.SetWord(base+4*arch.EthSlotSysHi, cmd.sysHi)
	l1.SetWord(base+4*arch.EthSlotData, cmd.data)
	l1.SetWord(base+4*arch.EthSlotFlags, cmd.flags)
	l1.SetWord(base+4*arch.EthSlotLength, cmd.length)
}

// serve executes every posted request and posts the responses. It runs
// when the host moves the request write pointer.
func (p *Port) serve() {
	l1 := p.l1()

	wr, _ := l1.Word(arch.EthReqQueue)
	rd, _ := l1.Word(arch.EthReqQueue + 4)

	for ; rd != wr; rd++ {
		cmd := p.readSlot(arch.EthReqQueue, rd)

		resp := cmd
		resp.flags = 0

		data, err := p.execute(cmd)
		if err != nil {
			resp.flags = arch.EthRespError
		}

		resp.data = data

		respWr, _ := l1.Word(arch.EthRespQueue)
		p.writeSlot(arch.EthRespQueue, respWr, resp)
		l1.SetWord(arch.EthRespQueue, respWr+1)
	}

	l1.SetWord(arch.EthReqQueue+4, rd)
}

func (p *Port) execute(cmd command) (uint32, error) {
	sys := uint64(cmd.sysLo) | uint64(cmd.sysHi)<<32
	dst, x, y, off := addr.DecodeSysAddr(sys)

	target, err := p.route(dst)
	if err != nil {
		return 0, err
	}

	read := cmd.flags&arch.EthCmdRead != 0
	block := cmd.flags&arch.EthCmdBlock != 0
	broadcast := cmd.flags&arch.EthCmdBroadcast != 0

	if read && broadcast {
		return 0, chiperr.ErrBroadcastRead
	}

	if cmd.length%4 != 0 || off%4 != 0 || cmd.length > arch.EthDataBufSize {
		return 0, fmt.Errorf("bad command length %d at 0x%x", cmd.length, off)
	}

	write := func(off uint64, v uint32) error {
		if broadcast {
			g := target.spec.Grid
			return target.broadcastWrite(g.Width-1, g.Height-1, off, v)
		}

		return target.nocWrite(x, y, off, v)
	}

	l1 := p.l1()

	switch {
	case read && !block:
		return target.nocRead(x, y, off)
	case read:
		for i := uint64(0); i < uint64(cmd.length); i += 4 {
			v, err := target.nocRead(x, y, off+i)
			if err != nil {
				return 0, err
			}

			l1.SetWord(arch.EthDataBuf+i, v)
		}
	case !block:
		return 0, write(off, cmd.data)
	default:
		for i := uint64(0); i < uint64(cmd.length); i += 4 {
			v, _ := l1.Word(arch.EthDataBuf + i)
			if err := write(off+i, v); err != nil {
				return 0, err
			}
		}
	}

	return 0, nil
}
