package chip

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/poll"
	"github.com/sarchlab/chiplink/transport"
)

// ErrRemoteFailed is returned when the Ethernet firmware reports that a
// command could not be executed on the remote chip.
var ErrRemoteFailed = errors.New("remote command failed")

// ethQueue drives the command queue of one local Ethernet core to access
// one remote core. It is word granular; unaligned accesses are built on it
// with transport.ReadUnaligned and WriteUnaligned.
type ethQueue struct {
	p         *PCI
	core      addr.NocAddress
	target    addr.RemoteTarget
	remote    addr.NocAddress
	broadcast bool
}

type ethCmd struct {
	sys    uint64
	data   uint32
	flags  uint32
	length uint32
}

func (c ethCmd) encode() []byte {
	buf := make([]byte, 20)
	transport.PutWord(buf[4*arch.EthSlotSysLo:], uint32(c.sys))
	transport.PutWord(buf[4*arch.EthSlotSysHi:], uint32(c.sys>>32))
	transport.PutWord(buf[4*arch.EthSlotData:], c.data)
	transport.PutWord(buf[4*arch.EthSlotFlags:], c.flags)
	transport.PutWord(buf[4*arch.EthSlotLength:], c.length)

	return buf
}

func decodeEthCmd(buf []byte) ethCmd {
	return ethCmd{
		sys: uint64(transport.Word(buf[4*arch.EthSlotSysLo:])) |
			uint64(transport.Word(buf[4*arch.EthSlotSysHi:]))<<32,
		data:   transport.Word(buf[4*arch.EthSlotData:]),
		flags:  transport.Word(buf[4*arch.EthSlotFlags:]),
		length: transport.Word(buf[4*arch.EthSlotLength:]),
	}
}

func (q *ethQueue) baseFlags() uint32 {
	var f uint32

	if q.remote.Noc == addr.Noc1 {
		f |= arch.EthCmdNoc1
	}

	if q.broadcast {
		f |= arch.EthCmdBroadcast
	}

	return f
}

// ReadAligned implements transport.Aligned.
func (q *ethQueue) ReadAligned(off uint64, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), arch.EthDataBufSize)

		if n == 4 {
			v, err := q.exec(arch.EthCmdRead, off, 0, 4)
			if err != nil {
				return err
			}

			transport.PutWord(buf, v)
		} else {
			if _, err := q.exec(arch.EthCmdRead|arch.EthCmdBlock, off, 0, n); err != nil {
				return err
			}

			err := q.p.throughTLB(&q.p.unicast, tlbTarget(q.core),
				arch.EthDataBuf, buf[:n], false)
			if err != nil {
				return err
			}
		}

		buf = buf[n:]
		off += uint64(n)
	}

	return nil
}

// WriteAligned implements transport.Aligned.
func (q *ethQueue) WriteAligned(off uint64, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), arch.EthDataBufSize)

		if n == 4 {
			if _, err := q.exec(arch.EthCmdWrite, off, transport.Word(buf), 4); err != nil {
				return err
			}
		} else {
			err := q.p.throughTLB(&q.p.unicast, tlbTarget(q.core),
				arch.EthDataBuf, buf[:n], true)
			if err != nil {
				return err
			}

			if _, err := q.exec(arch.EthCmdWrite|arch.EthCmdBlock, off, 0, n); err != nil {
				return err
			}
		}

		buf = buf[n:]
		off += uint64(n)
	}

	return nil
}

// exec posts one command and waits for its response.
func (q *ethQueue) exec(flags uint32, off uint64, data uint32, n int) (uint32, error) {
	sys, err := q.target.SysAddr(q.remote.X, q.remote.Y, off)
	if err != nil {
		return 0, err
	}

	cmd := ethCmd{
		sys:    sys,
		data:   data,
		flags:  flags | q.baseFlags(),
		length: uint32(n),
	}

	reqWr, err := q.p.nocWord(q.core, arch.EthReqQueue)
	if err != nil {
		return 0, err
	}

	err = q.wait(func() (bool, error) {
		reqRd, err := q.p.nocWord(q.core, arch.EthReqQueue+4)
		return reqWr-reqRd < arch.EthQueueSlots, err
	})
	if err != nil {
		return 0, fmt.Errorf("waiting for a request slot: %w", err)
	}

	respRd, err := q.p.nocWord(q.core, arch.EthRespQueue+4)
	if err != nil {
		return 0, err
	}

	err = q.p.throughTLB(&q.p.unicast, tlbTarget(q.core),
		arch.EthSlotAddr(arch.EthReqQueue, reqWr), cmd.encode(), true)
	if err != nil {
		return 0, err
	}

	if err := q.p.setNocWord(q.core, arch.EthReqQueue, reqWr+1); err != nil {
		return 0, err
	}

	err = q.wait(func() (bool, error) {
		respWr, err := q.p.nocWord(q.core, arch.EthRespQueue)
		return respWr != respRd, err
	})
	if err != nil {
		return 0, fmt.Errorf("waiting for the response: %w", err)
	}

	slot := make([]byte, 20)

	err = q.p.throughTLB(&q.p.unicast, tlbTarget(q.core),
		arch.EthSlotAddr(arch.EthRespQueue, respRd), slot, false)
	if err != nil {
		return 0, err
	}

	if err := q.p.setNocWord(q.core, arch.EthRespQueue+4, respRd+1); err != nil {
		return 0, err
	}

	resp := decodeEthCmd(slot)

	switch {
	case resp.flags&arch.EthRespTimeout != 0:
		return 0, chiperr.Transport("eth command", off, chiperr.ErrTimeout).
			WithDevice(q.p.acc.ID())
	case resp.flags&arch.EthRespError != 0:
		return 0, chiperr.Transport("eth command", off,
			fmt.Errorf("%w: %s", ErrRemoteFailed, q.target)).
			WithDevice(q.p.acc.ID())
	}

	return resp.data, nil
}

func (q *ethQueue) wait(cond func() (bool, error)) error {
	return poll.Until(context.Background(), q.p.eth.poll(), cond)
}
