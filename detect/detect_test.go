package detect_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/simchip"
	"github.com/sarchlab/chiplink/transport"
)

func quickOptions() detect.Options {
	opts := detect.DefaultOptions()
	opts.Arc = arc.Config{
		Timeout: 30 * time.Millisecond,
		PollMin: time.Millisecond,
		PollMax: 5 * time.Millisecond,
	}
	opts.Eth = chip.EthConfig{
		Timeout: 50 * time.Millisecond,
		PollMin: time.Microsecond,
		PollMax: time.Millisecond,
	}

	return opts
}

// lyingBus reports a different device id than the chip's tag.
type lyingBus struct {
	*simchip.Bus
	deviceID uint16
}

type lyingHandle struct {
	transport.Handle
	deviceID uint16
}

func (b lyingBus) Open(id int) (transport.Handle, error) {
	h, err := b.Bus.Open(id)
	if err != nil {
		return nil, err
	}

	return lyingHandle{Handle: h, deviceID: b.deviceID}, nil
}

func (h lyingHandle) Info() (transport.DeviceInfo, bool) {
	info, ok := h.Handle.Info()
	info.DeviceID = h.deviceID

	return info, ok
}

var _ = Describe("Detection", func() {
	var (
		ctx  context.Context
		opts detect.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		opts = quickOptions()
	})

	Context("on a mixed host", func() {
		var bus *simchip.Bus

		BeforeEach(func() {
			bus = simchip.NewSystem(simchip.DefaultSystemConfig)
		})

		It("should classify every device", func() {
			recs, err := detect.ScanAll(ctx, bus, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(HaveLen(5))

			for i, a := range []arch.Arch{arch.Grayskull, arch.Blackhole, arch.Wormhole} {
				Expect(recs[i].State).To(Equal(detect.Verified), recs[i].String())
				Expect(recs[i].Arch).To(Equal(a))
				Expect(recs[i].FirmwareUnavailable).To(BeFalse())
				Expect(recs[i].Chip.ArcAlive()).To(BeTrue())
			}

			Expect(recs[3].State).To(Equal(detect.Failed))
			Expect(recs[3].Reason).To(Equal(detect.ReasonOpen))
			Expect(recs[3].Err).To(MatchError(simchip.ErrUnopenable))

			Expect(recs[4].State).To(Equal(detect.Failed))
			Expect(recs[4].Reason).To(Equal(detect.ReasonUnknownArch))
			Expect(recs[4].Tag).To(Equal(simchip.UnknownTag))
			Expect(chiperr.IsKind(recs[4].Err, chiperr.KindUnknownArch)).To(BeTrue())
			Expect(recs[4].Chip).To(BeNil())
		})

		It("should skip what fails and report it", func() {
			var skipped []*detect.Record

			s := detect.NewScanner(opts)
			s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == detect.HookPosDeviceSkipped {
					skipped = append(skipped, ctx.Item.(*detect.Record))
				}
			}))

			chips, err := s.Scan(ctx, bus)

			Expect(err).NotTo(HaveOccurred())
			Expect(chips).To(HaveLen(3))
			Expect(skipped).To(HaveLen(2))
			Expect(skipped[0].ID).To(Equal(3))
			Expect(skipped[1].ID).To(Equal(4))
		})

		It("should surface the error of a single device", func() {
			_, err := detect.Open(ctx, bus, 3, opts)
			Expect(chiperr.IsKind(err, chiperr.KindOpen)).To(BeTrue())

			_, err = detect.Open(ctx, bus, 4, opts)
			Expect(chiperr.IsKind(err, chiperr.KindUnknownArch)).To(BeTrue())

			_, err = detect.Open(ctx, bus, 17, opts)
			Expect(err).To(MatchError(chiperr.ErrNotPresent))

			c, err := detect.Open(ctx, bus, 2, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Arch()).To(Equal(arch.Wormhole))
		})

		It("should wrap interfaces when asked to", func() {
			opts.Locked = true

			c, err := detect.Open(ctx, bus, 0, opts)

			Expect(err).NotTo(HaveOccurred())
			Expect(c.Interface()).To(BeAssignableToTypeOf(&chip.Locked{}))
		})
	})

	It("should keep chips with dead firmware", func() {
		bus := simchip.NewSystem(simchip.SystemConfig{Grayskull: 1, DeadFirmware: true})

		recs, err := detect.ScanAll(ctx, bus, opts)

		Expect(err).NotTo(HaveOccurred())
		Expect(recs[0].State).To(Equal(detect.Verified))
		Expect(recs[0].FirmwareUnavailable).To(BeTrue())
		Expect(recs[0].Chip.ArcAlive()).To(BeFalse())
		Expect(recs[0].String()).To(ContainSubstring("firmware unavailable"))
	})

	It("should fail on a transport fault while verifying", func() {
		bus := simchip.NewBus()
		sim := simchip.MakeBuilder().Build("wh")
		id := bus.Attach(sim)

		rec := detect.Probe(bus, id, opts)
		Expect(rec.State).To(Equal(detect.Partial))

		sim.InjectFault(chiperr.ErrTimeout)
		rec = detect.Upgrade(ctx, rec)

		Expect(rec.State).To(Equal(detect.Failed))
		Expect(rec.Reason).To(Equal(detect.ReasonTransport))
		Expect(rec.Chip).To(BeNil())
	})

	It("should fail when the tag cannot be read", func() {
		bus := simchip.NewBus()
		sim := simchip.MakeBuilder().Build("wh")
		sim.InjectFault(chiperr.ErrTimeout)
		id := bus.Attach(sim)

		rec := detect.Probe(bus, id, opts)

		Expect(rec.State).To(Equal(detect.Failed))
		Expect(rec.Reason).To(Equal(detect.ReasonTransport))
		Expect(rec.HasInfo).To(BeTrue())
	})

	It("should fail when the bus and the tag disagree", func() {
		bus := simchip.NewBus()
		bus.Attach(simchip.MakeBuilder().Build("wh"))

		liar := lyingBus{Bus: bus, deviceID: arch.MustLookup(arch.Blackhole).DeviceID}
		rec := detect.Upgrade(ctx, detect.Probe(liar, 0, opts))

		Expect(rec.State).To(Equal(detect.Failed))
		Expect(rec.Reason).To(Equal(detect.ReasonArchMismatch))
		Expect(chiperr.IsKind(rec.Err, chiperr.KindArchMismatch)).To(BeTrue())
	})

	It("should trust the tag when the bus cannot identify the device", func() {
		bus := simchip.NewBus()
		bus.AttachAnonymous(simchip.MakeBuilder().WithArch(arch.Blackhole).Build("bh"))

		rec := detect.Upgrade(ctx, detect.Probe(bus, 0, opts))

		Expect(rec.State).To(Equal(detect.Verified))
		Expect(rec.HasInfo).To(BeFalse())
		Expect(rec.Arch).To(Equal(arch.Blackhole))
	})

	It("should leave records that are not partial alone", func() {
		rec := detect.Record{ID: 1, State: detect.Failed, Reason: detect.ReasonOpen}

		Expect(detect.Upgrade(ctx, rec)).To(Equal(rec))
	})
})
