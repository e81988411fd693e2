package simchip_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/simchip"
	"github.com/sarchlab/chiplink/transport"
)

func linkWord(c *simchip.Chip, p *simchip.Port, off uint64) uint32 {
	b, err := c.ReadNoc(p.Core().X, p.Core().Y, off, 4)
	Expect(err).NotTo(HaveOccurred())

	return transport.Word(b)
}

var _ = Describe("Ethernet", func() {
	var a, b *simchip.Chip

	BeforeEach(func() {
		builder := simchip.MakeBuilder()
		a = builder.WithEthAddr(addr.EthAddr{ShelfX: 1}).Build("a")
		b = builder.WithEthAddr(addr.EthAddr{ShelfY: 2}).Build("b")
	})

	It("should have one port per ethernet core", func() {
		Expect(a.NumPorts()).To(Equal(len(arch.MustLookup(arch.Wormhole).Eth)))
		Expect(a.Port(3).Core()).To(Equal(arch.Coord{X: 2, Y: 0}))
		Expect(a.Port(3).Chip()).To(BeIdenticalTo(a))
	})

	It("should publish a down link before cabling", func() {
		p := a.Port(0)

		Expect(p.Trained()).To(BeFalse())
		Expect(p.Peer()).To(BeNil())
		Expect(linkWord(a, p, arch.EthLinkStatus)).To(BeZero())
		Expect(linkWord(a, p, arch.EthLocalCoord)).To(Equal(addr.EthAddr{ShelfX: 1}.Encode()))
	})

	It("should publish both ends once connected", func() {
		simchip.Connect(a, 0, b, 5, true)

		pa, pb := a.Port(0), b.Port(5)

		Expect(pa.Peer()).To(BeIdenticalTo(pb))
		Expect(pb.Peer()).To(BeIdenticalTo(pa))
		Expect(linkWord(a, pa, arch.EthLinkStatus)).To(Equal(arch.EthLinkTrained))
		Expect(linkWord(b, pb, arch.EthLinkStatus)).To(Equal(arch.EthLinkTrained))
		Expect(linkWord(a, pa, arch.EthRemoteCoord)).To(Equal(b.EthAddr().Encode()))
		Expect(linkWord(b, pb, arch.EthRemoteCoord)).To(Equal(a.EthAddr().Encode()))
	})

	It("should take both ends down", func() {
		simchip.Connect(a, 0, b, 5, true)

		b.Port(5).SetTrained(false)

		Expect(a.Port(0).Trained()).To(BeFalse())
		Expect(linkWord(a, a.Port(0), arch.EthLinkStatus)).To(BeZero())
	})

	It("should publish an arbitrary status on one end", func() {
		simchip.Connect(a, 0, b, 5, true)

		a.Port(0).SetLinkStatus(2)

		Expect(linkWord(a, a.Port(0), arch.EthLinkStatus)).To(Equal(uint32(2)))
		Expect(linkWord(b, b.Port(5), arch.EthLinkStatus)).To(Equal(arch.EthLinkTrained))
	})
})

var _ = Describe("System", func() {
	It("should cable a ring", func() {
		ring := simchip.Ring(simchip.MakeBuilder(), 4)

		Expect(ring).To(HaveLen(4))

		for i, c := range ring {
			next := ring[(i+1)%4]

			Expect(c.EthAddr()).To(Equal(addr.EthAddr{ShelfX: uint8(i)}))
			Expect(c.Port(0).Peer().Chip()).To(BeIdenticalTo(next))
			Expect(next.Port(1).Peer().Chip()).To(BeIdenticalTo(c))
		}
	})

	It("should cable two chips twice", func() {
		ring := simchip.Ring(simchip.MakeBuilder(), 2)

		Expect(ring[0].Port(0).Peer().Chip()).To(BeIdenticalTo(ring[1]))
		Expect(ring[1].Port(2).Peer().Chip()).To(BeIdenticalTo(ring[0]))
	})

	It("should populate a mixed host", func() {
		bus := simchip.NewSystem(simchip.DefaultSystemConfig)

		ids, err := bus.Scan()
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(5))

		Expect(bus.Chip(0).Spec().Arch).To(Equal(arch.Grayskull))
		Expect(bus.Chip(1).Spec().Arch).To(Equal(arch.Blackhole))
		Expect(bus.Chip(2).Spec().Arch).To(Equal(arch.Wormhole))
		Expect(bus.Chip(2).Port(0).Trained()).To(BeTrue())
		Expect(bus.Chip(3)).To(BeNil())
		Expect(bus.Chip(4).Tag()).To(Equal(simchip.UnknownTag))
	})
})
