package chiperr

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Error", func() {
	It("should carry device, address and code in the message", func() {
		err := Transport("axi read", 0x1ff30060, ErrShortTransfer).
			WithDevice(2).
			WithCode(-5)

		Expect(err.Error()).To(Equal(
			"transport error in axi read on device 2 at 0x1ff30060 " +
				"(code -5): short transfer"))
	})

	It("should match sentinels through wrapping", func() {
		err := fmt.Errorf("probing: %w", Protocol("arc msg", ErrTimeout))

		Expect(errors.Is(err, ErrTimeout)).To(BeTrue())
		Expect(IsKind(err, KindProtocol)).To(BeTrue())
		Expect(IsKind(err, KindTransport)).To(BeFalse())
	})

	It("should report unknown kind for foreign errors", func() {
		Expect(KindOf(errors.New("x"))).To(Equal(KindUnknown))
		Expect(IsKind(nil, KindUnknown)).To(BeFalse())
	})

	It("should keep the raw tag of unknown architectures", func() {
		err := UnknownArch(3, 0xdead1e52)

		Expect(err.Kind).To(Equal(KindUnknownArch))
		Expect(err.Code).To(Equal(int64(0xdead1e52)))
		Expect(err.DeviceID).To(Equal(3))
	})

	It("should attach the device id once", func() {
		err := Attach(Addressing("noc read", ErrOutOfGrid), 4)
		Expect(KindOf(err)).To(Equal(KindAddressing))

		var e *Error
		Expect(errors.As(err, &e)).To(BeTrue())
		Expect(e.DeviceID).To(Equal(4))

		Attach(err, 7)
		Expect(e.DeviceID).To(Equal(4))
	})

	It("should wrap foreign errors as transport errors", func() {
		err := Attach(errors.New("bus fault"), 1)

		Expect(IsKind(err, KindTransport)).To(BeTrue())
		Expect(Attach(nil, 1)).To(BeNil())
	})
})
