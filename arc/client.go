// Package arc exchanges messages with the ARC firmware through the mailbox
// scratch registers. An exchange posts an opcode and an argument, rings the
// doorbell and polls for the answer with a bounded timeout.
package arc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/idgen"
	"github.com/sarchlab/chiplink/poll"
	"github.com/sarchlab/chiplink/regmap"
	"github.com/sarchlab/chiplink/transport"
)

// Port is the part of a chip the mailbox is reached through.
type Port interface {
	AxiRead(a addr.AxiAddress, buf []byte) error
	AxiWrite(a addr.AxiAddress, buf []byte) error
}

// StatusPrefix marks the status register of a posted, unanswered message.
const StatusPrefix = 0xaa00

// Config bounds an exchange.
type Config struct {
	Timeout time.Duration
	PollMin time.Duration
	PollMax time.Duration
}

// DefaultConfig waits up to a second, polling every 1 to 50 ms.
var DefaultConfig = Config{
	Timeout: time.Second,
	PollMin: poll.DefaultMin,
	PollMax: poll.DefaultMax,
}

// HookPosMsgSent fires once the doorbell has been rung. The item is an
// *Exchange.
var HookPosMsgSent = &hooking.HookPos{Name: "ARC Msg Sent"}

// HookPosMsgDone fires when an exchange ends. The detail is the error, if
// any.
var HookPosMsgDone = &hooking.HookPos{Name: "ARC Msg Done"}

// Exchange records one message and its outcome.
type Exchange struct {
	ID       string
	DeviceID int
	Msg      Msg
	Response Response
	Polls    int
	Start    time.Time
	Elapsed  time.Duration
}

// Client sends messages to the firmware of one chip. It allows one exchange
// at a time; a concurrent Send fails with chiperr.ErrBusy.
type Client struct {
	hooking.HookableBase

	port       Port
	cfg        Config
	deviceID   int
	status     addr.AxiAddress
	arg        addr.AxiAddress
	doorbell   addr.AxiAddress
	triggerBit uint

	busy atomic.Bool
}

// Builder builds clients.
type Builder struct {
	port     Port
	resolver regmap.Resolver
	mailbox  arch.Mailbox
	cfg      Config
	deviceID int
}

// MakeBuilder returns a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg:      DefaultConfig,
		deviceID: chiperr.NoDevice,
	}
}

// WithPort sets the chip the mailbox is on.
func (b Builder) WithPort(p Port) Builder {
	b.port = p
	return b
}

// WithResolver sets the register map the mailbox names resolve in.
func (b Builder) WithResolver(r regmap.Resolver) Builder {
	b.resolver = r
	return b
}

// WithMailbox sets the mailbox registers.
func (b Builder) WithMailbox(m arch.Mailbox) Builder {
	b.mailbox = m
	return b
}

// WithConfig sets the timeout and poll interval.
func (b Builder) WithConfig(c Config) Builder {
	b.cfg = c
	return b
}

// WithDeviceID sets the bus id reported in errors.
func (b Builder) WithDeviceID(id int) Builder {
	b.deviceID = id
	return b
}

// Build resolves the mailbox registers and returns the client.
func (b Builder) Build() (*Client, error) {
	if b.port == nil || b.resolver == nil {
		log.Panic("arc client needs a port and a resolver")
	}

	c := &Client{
		port:       b.port,
		cfg:        b.cfg,
		deviceID:   b.deviceID,
		triggerBit: b.mailbox.TriggerBit,
	}

	regs := []struct {
		name string
		dst  *addr.AxiAddress
	}{
		{b.mailbox.Status, &c.status},
		{b.mailbox.Arg, &c.arg},
		{b.mailbox.Doorbell, &c.doorbell},
	}

	for _, r := range regs {
		a, err := b.resolver.Resolve(r.name)
		if err != nil {
			return nil, chiperr.Attach(err, b.deviceID)
		}

		*r.dst = a
	}

	return c, nil
}

// Config returns the timeout and poll interval of the client.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) read(a addr.AxiAddress) (uint32, error) {
	buf := make([]byte, 4)
	if err := c.port.AxiRead(a, buf); err != nil {
		return 0, chiperr.Attach(err, c.deviceID)
	}

	return transport.Word(buf), nil
}

func (c *Client) write(a addr.AxiAddress, v uint32) error {
	buf := make([]byte, 4)
	transport.PutWord(buf, v)

	if err := c.port.AxiWrite(a, buf); err != nil {
		return chiperr.Attach(err, c.deviceID)
	}

	return nil
}

func (c *Client) protocolErr(cause error) *chiperr.Error {
	return chiperr.Protocol("arc msg", cause).WithDevice(c.deviceID)
}

// Send posts msg and, unless it is NoWait, waits for the answer. ctx is
// checked between polls. A non-zero return code yields the response and an
// error wrapping chiperr.ErrRejected.
func (c *Client) Send(ctx context.Context, msg Msg) (Response, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Response{}, c.protocolErr(chiperr.ErrBusy)
	}
	defer c.busy.Store(false)

	if msg.Opcode > MaxOpcode {
		return Response{}, c.protocolErr(
			fmt.Errorf("opcode 0x%x does not fit the mailbox", msg.Opcode))
	}

	ex := &Exchange{
		ID:       idgen.Get().Generate(),
		DeviceID: c.deviceID,
		Msg:      msg,
		Start:    time.Now(),
	}

	resp, err := c.exchange(ctx, ex)

	ex.Response = resp
	ex.Elapsed = time.Since(ex.Start)

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosMsgDone,
			Item:   ex,
			Detail: err,
		})
	}

	return resp, err
}

func (c *Client) exchange(ctx context.Context, ex *Exchange) (Response, error) {
	msg := ex.Msg

	if err := c.write(c.status, StatusPrefix|uint32(msg.Opcode)); err != nil {
		return Response{}, err
	}

	if err := c.write(c.arg, msg.PackedArg()); err != nil {
		return Response{}, err
	}

	if err := c.setDoorbell(true); err != nil {
		return Response{}, err
	}

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosMsgSent, Item: ex})
	}

	if msg.Wait == NoWait {
		return Response{Kind: OkNoWait}, nil
	}

	var status uint32

	pc := poll.Config{
		Timeout: c.cfg.Timeout,
		Min:     c.cfg.PollMin,
		Max:     c.cfg.PollMax,
	}

	err := poll.Until(ctx, pc, func() (bool, error) {
		ex.Polls++

		var err error
		status, err = c.read(c.status)

		return status&0xffff == uint32(msg.Opcode), err
	})

	switch {
	case errors.Is(err, chiperr.ErrTimeout):
		return Response{}, c.protocolErr(fmt.Errorf(
			"%w: no answer to %s after %v", chiperr.ErrTimeout, msg, c.cfg.Timeout))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Response{}, c.protocolErr(err)
	case err != nil:
		return Response{}, err
	}

	arg, err := c.read(c.arg)
	if err != nil {
		return Response{}, err
	}

	if err := c.setDoorbell(false); err != nil {
		return Response{}, err
	}

	resp := Response{Kind: Ok, RC: uint16(status >> 16), Arg: arg}
	if resp.RC != 0 {
		return resp, c.protocolErr(fmt.Errorf("%w: %s", chiperr.ErrRejected, msg)).
			WithCode(int64(resp.RC))
	}

	return resp, nil
}

func (c *Client) setDoorbell(on bool) error {
	v, err := c.read(c.doorbell)
	if err != nil {
		return err
	}

	bit := uint32(1) << c.triggerBit
	if on {
		v |= bit
	} else {
		v &^= bit
	}

	return c.write(c.doorbell, v)
}
