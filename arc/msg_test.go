package arc_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/arc"
	"github.com/sarchlab/chiplink/hooking"
)

func hookFunc(f func(pos string, e *arc.Exchange)) hooking.Hook {
	return hooking.HookFunc(func(ctx hooking.HookCtx) {
		f(ctx.Pos.Name, ctx.Item.(*arc.Exchange))
	})
}

var _ = Describe("Msg", func() {
	It("should pack both arguments", func() {
		Expect(arc.Raw(0x20, 0x1234, 0xabcd).PackedArg()).To(Equal(uint32(0xabcd1234)))
	})

	It("should name known opcodes", func() {
		Expect(arc.Test(7).String()).To(Equal("test(0x7, 0x0)"))
		Expect(arc.Raw(0x42, 1, 2).String()).To(Equal("raw-0x42(0x1, 0x2)"))
	})

	It("should mark reset as no-wait", func() {
		Expect(arc.TriggerReset().Wait).To(Equal(arc.NoWait))
		Expect(arc.GetFwVersion(arc.FwEth).Args[0]).To(Equal(uint16(arc.FwEth)))
	})

	It("should render responses", func() {
		Expect(arc.Response{Kind: arc.OkNoWait}.String()).To(Equal("ok-no-wait"))
		Expect(arc.Response{RC: 1, Arg: 0x10}.String()).To(Equal("rc=1 arg=0x10"))
	})
})
