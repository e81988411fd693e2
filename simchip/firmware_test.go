package simchip_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/regmap"
	"github.com/sarchlab/chiplink/simchip"
	"github.com/sarchlab/chiplink/transport"
)

var _ = Describe("Firmware", func() {
	var (
		fw                    simchip.Firmware
		c                     *simchip.Chip
		h                     transport.Handle
		status, arg, doorbell uint32
	)

	build := func() {
		c = simchip.MakeBuilder().WithFirmware(fw).Build("wh")

		bus := simchip.NewBus()
		bus.Attach(c)
		h, _ = bus.Open(0)
	}

	post := func(op uint16, a uint32) {
		Expect(h.WriteWord(status, arc.StatusPrefix|uint32(op))).To(Succeed())
		Expect(h.WriteWord(arg, a)).To(Succeed())
		Expect(h.WriteWord(doorbell, 1<<16)).To(Succeed())
	}

	read := func(off uint32) uint32 {
		v, err := h.ReadWord(off)
		Expect(err).NotTo(HaveOccurred())

		return v
	}

	BeforeEach(func() {
		fw = simchip.DefaultFirmware()

		spec := arch.MustLookup(arch.Wormhole)
		regs := regmap.MustEmbedded(spec.RegMap)

		resolve := func(name string) uint32 {
			a, err := regs.Resolve(name)
			Expect(err).NotTo(HaveOccurred())

			return uint32(a)
		}

		status = resolve(spec.Mailbox.Status)
		arg = resolve(spec.Mailbox.Arg)
		doorbell = resolve(spec.Mailbox.Doorbell)
	})

	It("should answer a test message with its argument plus one", func() {
		build()

		post(arc.OpTest, 41)

		Expect(read(status)).To(Equal(uint32(arc.OpTest)))
		Expect(read(arg)).To(Equal(uint32(42)))
		Expect(c.Firmware().Received()).To(Equal([]arc.Msg{arc.Raw(arc.OpTest, 41, 0)}))
	})

	It("should report firmware versions", func() {
		build()

		post(arc.OpGetFwVersion, uint32(arc.FwEth))
		Expect(read(arg)).To(Equal(fw.EthVersion))

		post(arc.OpGetFwVersion, uint32(arc.FwArc))
		Expect(read(arg)).To(Equal(fw.Version))
	})

	It("should reject unknown opcodes", func() {
		build()

		post(0x42, 0)

		Expect(read(status)).To(Equal(uint32(simchip.RCUnknownMsg)<<16 | 0x42))
	})

	It("should force return codes", func() {
		fw.RC = map[uint16]uint16{arc.OpNop: 3}
		build()

		post(arc.OpNop, 0)

		Expect(read(status) >> 16).To(Equal(uint32(3)))
	})

	It("should answer after the configured number of status reads", func() {
		fw.Delay = 3
		build()

		post(arc.OpNop, 0)

		Expect(read(status)).To(Equal(uint32(arc.StatusPrefix | uint32(arc.OpNop))))
		Expect(read(status)).To(Equal(uint32(arc.StatusPrefix | uint32(arc.OpNop))))
		Expect(read(status)).To(Equal(uint32(arc.OpNop)))
	})

	It("should not answer when dead", func() {
		fw = simchip.DeadFirmware()
		build()

		post(arc.OpTest, 1)

		Expect(read(status)).To(Equal(uint32(arc.StatusPrefix | uint32(arc.OpTest))))
		Expect(c.Firmware().Received()).To(HaveLen(1))
	})

	It("should count resets without answering", func() {
		build()

		post(arc.OpArcGoToSleep, 0)
		Expect(c.Firmware().Asleep()).To(BeTrue())

		post(arc.OpTriggerReset, 0)

		Expect(c.Firmware().Resets()).To(Equal(1))
		Expect(c.Firmware().Asleep()).To(BeFalse())
		Expect(read(status)).To(Equal(uint32(arc.StatusPrefix | uint32(arc.OpTriggerReset))))
	})

	It("should ignore a doorbell without a posted message", func() {
		build()

		Expect(h.WriteWord(doorbell, 1<<16)).To(Succeed())

		Expect(c.Firmware().Received()).To(BeEmpty())
	})
})

