package detect_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/device"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/simchip"
)

var _ = Describe("WalkMesh", func() {
	var (
		ctx   context.Context
		opts  detect.Options
		ring  []*simchip.Chip
		bus   *simchip.Bus
		local []*device.Chip
	)

	scan := func() {
		var err error
		local, err = detect.Scan(ctx, bus, opts)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		opts = quickOptions()
		ring = simchip.Ring(simchip.MakeBuilder(), 4)
		bus = simchip.NewBus()
		bus.Attach(ring[0])
	})

	It("should visit every chip of a ring once", func() {
		scan()

		recs := detect.WalkMesh(ctx, local, opts)

		Expect(recs).To(HaveLen(3))

		found := map[addr.EthAddr]uint8{}
		for _, r := range recs {
			Expect(r.State).To(Equal(detect.Verified), r.String())
			Expect(r.ID).To(Equal(chiperr.NoDevice))
			Expect(r.Arch).To(Equal(arch.Wormhole))
			Expect(r.Chip.IsRemote()).To(BeTrue())
			Expect(r.Chip.ArcAlive()).To(BeTrue())

			found[r.Remote.Chip] = r.Remote.Route.Hops
		}

		Expect(found).To(Equal(map[addr.EthAddr]uint8{
			ring[1].EthAddr(): 1,
			ring[2].EthAddr(): 2,
			ring[3].EthAddr(): 1,
		}))
	})

	It("should reach remote memory through a found chip", func() {
		scan()

		recs := detect.WalkMesh(ctx, local, opts)

		var far *device.Chip
		for _, r := range recs {
			if r.Remote.Chip == ring[2].EthAddr() {
				far = r.Chip
			}
		}
		Expect(far).NotTo(BeNil())

		Expect(far.AxiSWrite32("ARC_RESET.SCRATCH[1]", 0x99)).To(Succeed())
		Expect(ring[2].ReadAxi(0x1ff30064)).To(Equal(uint32(0x99)))
	})

	It("should not cross links that are down", func() {
		ring[0].Port(0).SetTrained(false)
		ring[2].Port(0).SetTrained(false)
		scan()

		recs := detect.WalkMesh(ctx, local, opts)

		Expect(recs).To(HaveLen(1))
		Expect(recs[0].Remote.Chip).To(Equal(ring[3].EthAddr()))
	})

	It("should not walk from a chip whose links are training", func() {
		ring[0].Port(5).SetLinkStatus(2)
		scan()

		Expect(detect.WalkMesh(ctx, local, opts)).To(BeEmpty())
	})

	It("should keep remote chips with dead firmware", func() {
		ring[3].Firmware().Alive = false

		var skipped int

		s := detect.NewScanner(opts)
		s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == detect.HookPosDeviceSkipped {
				skipped++
			}
		}))

		scan()
		recs := s.WalkMesh(ctx, local)

		Expect(recs).To(HaveLen(3))
		Expect(skipped).To(BeZero())

		for _, r := range recs {
			if r.Remote.Chip == ring[3].EthAddr() {
				Expect(r.FirmwareUnavailable).To(BeTrue())
			}
		}
	})

	It("should skip remote chips of another generation", func() {
		odd := simchip.MakeBuilder().
			WithTag(arch.MustLookup(arch.Blackhole).Tag()).
			WithEthAddr(addr.EthAddr{ShelfY: 1}).
			Build("odd")
		simchip.Connect(ring[0], 6, odd, 0, true)

		var skipped []*detect.Record

		s := detect.NewScanner(opts)
		s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			if ctx.Pos == detect.HookPosDeviceSkipped {
				skipped = append(skipped, ctx.Item.(*detect.Record))
			}
		}))

		scan()
		recs := s.WalkMesh(ctx, local)

		Expect(recs).To(HaveLen(4))
		Expect(skipped).To(HaveLen(1))
		Expect(skipped[0].Reason).To(Equal(detect.ReasonArchMismatch))
		Expect(skipped[0].Chip).To(BeNil())
	})

	It("should ignore chips without ethernet", func() {
		gs := simchip.NewSystem(simchip.SystemConfig{Grayskull: 1})
		chips, err := detect.Scan(ctx, gs, opts)
		Expect(err).NotTo(HaveOccurred())

		Expect(detect.WalkMesh(ctx, chips, opts)).To(BeEmpty())
	})
})
