package simchip_test

import (
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/simchip"
	"github.com/sarchlab/chiplink/transport"
)

var _ = Describe("Bus", func() {
	var (
		bus *simchip.Bus
		gs  *simchip.Chip
	)

	BeforeEach(func() {
		bus = simchip.NewBus()
		gs = simchip.MakeBuilder().WithArch(arch.Grayskull).Build("gs")
		bus.Attach(gs)
	})

	It("should list every attached device", func() {
		bus.AttachUnopenable(simchip.ErrUnopenable)

		ids, err := bus.Scan()

		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]int{0, 1}))
		Expect(bus.Chip(0)).To(BeIdenticalTo(gs))
		Expect(bus.Chip(1)).To(BeNil())
		Expect(bus.Chip(7)).To(BeNil())
	})

	It("should identify an opened chip", func() {
		h, err := bus.Open(0)
		Expect(err).NotTo(HaveOccurred())

		info, ok := h.Info()
		Expect(ok).To(BeTrue())
		Expect(info.VendorID).To(Equal(arch.VendorID))
		Expect(info.DeviceID).To(Equal(uint16(0xfaca)))
		Expect(info.BusAddress).To(Equal("0000:01:00.0"))
		Expect(info.Driver).To(Equal("simchip"))
	})

	It("should open anonymous chips without identity", func() {
		id := bus.AttachAnonymous(simchip.MakeBuilder().Build("anon"))

		h, err := bus.Open(id)
		Expect(err).NotTo(HaveOccurred())

		_, ok := h.Info()
		Expect(ok).To(BeFalse())
	})

	It("should read the tag register", func() {
		h, _ := bus.Open(0)

		v, err := h.ReadWord(uint32(arch.TagRegister))

		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(arch.MustLookup(arch.Grayskull).Tag()))
	})

	It("should fail to open unopenable devices", func() {
		id := bus.AttachUnopenable(simchip.ErrUnopenable)

		_, err := bus.Open(id)

		Expect(chiperr.IsKind(err, chiperr.KindOpen)).To(BeTrue())
		Expect(err).To(MatchError(simchip.ErrUnopenable))
	})

	It("should fail to open absent devices", func() {
		_, err := bus.Open(3)

		Expect(err).To(MatchError(chiperr.ErrNotPresent))
	})

	It("should reject misaligned accesses", func() {
		h, _ := bus.Open(0)

		_, err := h.ReadWord(2)
		Expect(err).To(MatchError(transport.ErrMisaligned))

		err = h.WriteBlock(0x100, make([]byte, 6))
		Expect(err).To(MatchError(transport.ErrMisaligned))
	})

	It("should move blocks of words", func() {
		h, _ := bus.Open(0)

		in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		Expect(h.WriteBlock(0x2000_0000, in)).To(Succeed())

		out := make([]byte, 8)
		Expect(h.ReadBlock(0x2000_0000, out)).To(Succeed())
		Expect(out).To(Equal(in))
		Expect(gs.ReadAxi(0x2000_0004)).To(Equal(uint32(0x08070605)))
	})

	It("should refuse accesses after close", func() {
		h, _ := bus.Open(0)
		Expect(h.Close()).To(Succeed())

		_, err := h.ReadWord(0)
		Expect(err).To(MatchError(os.ErrClosed))
	})

	It("should return injected faults", func() {
		h, _ := bus.Open(0)
		fault := errors.New("surprise link down")

		gs.InjectFault(fault)
		_, err := h.ReadWord(0)
		Expect(err).To(MatchError(fault))

		gs.InjectFault(nil)
		_, err = h.ReadWord(0)
		Expect(err).NotTo(HaveOccurred())
	})
})
