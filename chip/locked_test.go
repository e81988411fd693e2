package chip_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/simchip"
)

var _ = Describe("Locked", func() {
	var (
		sim    *simchip.Chip
		pci    *chip.PCI
		locked *chip.Locked
	)

	BeforeEach(func() {
		sim = simchip.MakeBuilder().Build("wh")
		pci = openPCI(sim)
		locked = chip.NewLocked(pci)
	})

	It("should not wrap twice", func() {
		Expect(chip.NewLocked(locked)).To(BeIdenticalTo(locked))
		Expect(locked.Inner()).To(BeIdenticalTo(pci))
		Expect(locked.Kind()).To(Equal(chip.KindPCI))
	})

	It("should register hooks on the wrapped interface", func() {
		locked.AcceptHook(hooking.HookFunc(func(hooking.HookCtx) {}))

		Expect(pci.NumHooks()).To(Equal(1))
		Expect(locked.NumHooks()).To(Equal(1))
	})

	It("should serialize accesses from many goroutines", func() {
		var wg sync.WaitGroup

		for x := uint8(1); x <= 8; x++ {
			wg.Add(1)

			go func(x uint8) {
				defer GinkgoRecover()
				defer wg.Done()

				for i := uint32(0); i < 50; i++ {
					a := addr.At(addr.Noc0, x, 2, uint64(4*i))
					Expect(chip.NocWrite32(locked, a, uint32(x)<<16|i)).To(Succeed())
				}
			}(x)
		}

		wg.Wait()

		for x := uint8(1); x <= 8; x++ {
			for i := uint32(0); i < 50; i++ {
				v, err := chip.NocRead32(locked, addr.At(addr.Noc0, x, 2, uint64(4*i)))
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal(uint32(x)<<16 | i))
			}
		}
	})
})
