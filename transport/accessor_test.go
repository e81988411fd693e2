package transport_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/transport"
	"go.uber.org/mock/gomock"
)

// wordMem is a handle backed by a word array. It rejects misaligned
// accesses the way the driver does.
type wordMem struct {
	words  []uint32
	reads  int
	writes int
}

func newWordMem(n int, fill uint32) *wordMem {
	m := &wordMem{words: make([]uint32, n)}
	for i := range m.words {
		m.words[i] = fill
	}

	return m
}

func (m *wordMem) ReadWord(off uint32) (uint32, error) {
	if err := transport.CheckAligned(uint64(off), 4); err != nil {
		return 0, err
	}

	m.reads++

	return m.words[off/4], nil
}

func (m *wordMem) WriteWord(off uint32, v uint32) error {
	if err := transport.CheckAligned(uint64(off), 4); err != nil {
		return err
	}

	m.writes++
	m.words[off/4] = v

	return nil
}

func (m *wordMem) ReadBlock(off uint32, buf []byte) error {
	if err := transport.CheckAligned(uint64(off), len(buf)); err != nil {
		return err
	}

	for i := 0; i < len(buf); i += 4 {
		m.reads++
		transport.PutWord(buf[i:], m.words[(off+uint32(i))/4])
	}

	return nil
}

func (m *wordMem) WriteBlock(off uint32, buf []byte) error {
	if err := transport.CheckAligned(uint64(off), len(buf)); err != nil {
		return err
	}

	for i := 0; i < len(buf); i += 4 {
		m.writes++
		m.words[(off+uint32(i))/4] = transport.Word(buf[i:])
	}

	return nil
}

func (m *wordMem) Info() (transport.DeviceInfo, bool) {
	return transport.DeviceInfo{}, false
}

func (m *wordMem) Close() error {
	return nil
}

func (m *wordMem) bytes() []byte {
	out := make([]byte, 4*len(m.words))
	for i, w := range m.words {
		transport.PutWord(out[4*i:], w)
	}

	return out
}

var _ = Describe("Accessor", func() {
	var (
		mem *wordMem
		acc *transport.Accessor
	)

	BeforeEach(func() {
		mem = newWordMem(1024, 0xcdcdcdcd)
		acc = transport.NewAccessor(mem, 3)
	})

	Context("reading words at odd offsets", func() {
		BeforeEach(func() {
			mem.words[0] = 0x01234567
			mem.words[1] = 0x00abcdef
		})

		It("should read the aligned word unchanged", func() {
			v, err := acc.Read32(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0x01234567)))
		})

		It("should read across a word boundary at +1", func() {
			v, err := acc.Read32(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xef012345)))
		})

		It("should read across a word boundary at +3", func() {
			v, err := acc.Read32(3)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0xabcdef01)))
		})
	})

	Context("writing words at odd offsets", func() {
		It("should keep the surrounding bytes at +1", func() {
			Expect(acc.Write32(1, 0xdead)).To(Succeed())
			Expect(mem.words[0]).To(Equal(uint32(0x00deadcd)))
			Expect(mem.words[1]).To(Equal(uint32(0xcdcdcd00)))
		})

		It("should keep the surrounding bytes at +3", func() {
			Expect(acc.Write32(3, 0xc0ffe)).To(Succeed())
			Expect(mem.words[0]).To(Equal(uint32(0xfecdcdcd)))
			Expect(mem.words[1]).To(Equal(uint32(0xcd000c0f)))
		})

		It("should read back what it wrote", func() {
			for off := uint32(0); off < 8; off++ {
				Expect(acc.Write32(64+off, 0x11223344+off)).To(Succeed())
				Expect(acc.Read32(64 + off)).To(Equal(0x11223344 + off))
			}
		})
	})

	Context("writing short blocks", func() {
		It("should write two bytes at +1", func() {
			Expect(acc.WriteBlock(1, []byte{0xad, 0xde})).To(Succeed())
			Expect(mem.bytes()[:4]).To(Equal([]byte{0xcd, 0xad, 0xde, 0xcd}))
		})

		It("should write two bytes straddling a boundary at +3", func() {
			Expect(acc.WriteBlock(3, []byte{0xad, 0xde})).To(Succeed())
			Expect(mem.bytes()[:8]).To(Equal(
				[]byte{0xcd, 0xcd, 0xcd, 0xad, 0xde, 0xcd, 0xcd, 0xcd}))
		})

		It("should write nothing for an empty block", func() {
			Expect(acc.WriteBlock(5, nil)).To(Succeed())
			Expect(mem.writes).To(BeZero())
			Expect(mem.reads).To(BeZero())
		})
	})

	Context("round trips", func() {
		for _, off := range []uint32{0, 1, 3} {
			off := off

			It("should round trip 1024 bytes", func() {
				data := make([]byte, 1024)
				for i := range data {
					data[i] = byte(i*7 + 1)
				}

				Expect(acc.WriteBlock(off, data)).To(Succeed())

				back := make([]byte, len(data))
				Expect(acc.ReadBlock(off, back)).To(Succeed())
				Expect(back).To(Equal(data))

				raw := mem.bytes()
				Expect(raw[off : off+1024]).To(Equal(data))
				for i := uint32(0); i < off; i++ {
					Expect(raw[i]).To(Equal(byte(0xcd)))
				}
				Expect(raw[off+1024]).To(Equal(byte(0xcd)))
			})
		}

		It("should agree between word and block reads", func() {
			for i := range mem.words[:16] {
				mem.words[i] = uint32(i) * 0x01010101
			}

			for off := uint32(0); off < 40; off++ {
				buf := make([]byte, 4)
				Expect(acc.ReadBlock(off, buf)).To(Succeed())
				Expect(acc.Read32(off)).To(Equal(transport.Word(buf)))
			}
		})
	})

	It("should touch only the addressed bytes for every offset and width", func() {
		for off := uint32(0); off < 8; off++ {
			for n := 1; n <= 12; n++ {
				mem = newWordMem(8, 0xcdcdcdcd)
				acc = transport.NewAccessor(mem, 0)

				data := make([]byte, n)
				for i := range data {
					data[i] = byte(0x10 + i)
				}

				Expect(acc.WriteBlock(off, data)).To(Succeed())

				raw := mem.bytes()
				for i := range raw {
					in := uint32(i) >= off && uint32(i) < off+uint32(n)
					if in {
						Expect(raw[i]).To(Equal(data[uint32(i)-off]),
							"off %d n %d byte %d", off, n, i)
					} else {
						Expect(raw[i]).To(Equal(byte(0xcd)),
							"off %d n %d byte %d", off, n, i)
					}
				}
			}
		}
	})

	Context("when the handle fails", func() {
		var (
			mockCtrl *gomock.Controller
			handle   *MockHandle
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			handle = NewMockHandle(mockCtrl)
			acc = transport.NewAccessor(handle, 7)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should wrap read errors as transport errors", func() {
			cause := errors.New("bus fault")
			handle.EXPECT().ReadWord(uint32(0x100)).Return(uint32(0), cause)

			_, err := acc.Read32(0x100)

			Expect(err).To(MatchError(cause))
			Expect(chiperr.KindOf(err)).To(Equal(chiperr.KindTransport))

			var ce *chiperr.Error
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.DeviceID).To(Equal(7))
			Expect(ce.Addr).To(Equal(uint64(0x100)))
		})

		It("should not write when the merge read fails", func() {
			handle.EXPECT().
				ReadWord(uint32(0)).
				Return(uint32(0), errors.New("bus fault"))

			err := acc.Write32(2, 0xffff)

			Expect(chiperr.IsKind(err, chiperr.KindTransport)).To(BeTrue())
		})

		It("should use word accesses for aligned words", func() {
			handle.EXPECT().WriteWord(uint32(8), uint32(0xabcd)).Return(nil)

			Expect(acc.Write32(8, 0xabcd)).To(Succeed())
		})

		It("should close the handle", func() {
			handle.EXPECT().Close().Return(nil)

			Expect(acc.Close()).To(Succeed())
		})
	})
})

var _ = Describe("CheckAligned", func() {
	It("should accept aligned accesses", func() {
		Expect(transport.CheckAligned(8, 16)).To(Succeed())
	})

	It("should reject misaligned offsets and lengths", func() {
		Expect(transport.CheckAligned(2, 4)).To(MatchError(transport.ErrMisaligned))
		Expect(transport.CheckAligned(4, 3)).To(MatchError(transport.ErrMisaligned))
	})
})
