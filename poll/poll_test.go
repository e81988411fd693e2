package poll_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/poll"
)

var _ = Describe("Until", func() {
	var cfg poll.Config

	BeforeEach(func() {
		cfg = poll.Config{
			Timeout: 50 * time.Millisecond,
			Min:     time.Millisecond,
			Max:     5 * time.Millisecond,
		}
	})

	It("should return once the condition holds", func() {
		calls := 0

		err := poll.Until(context.Background(), cfg, func() (bool, error) {
			calls++
			return calls == 3, nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("should time out within the bound", func() {
		start := time.Now()

		err := poll.Until(context.Background(), cfg, func() (bool, error) {
			return false, nil
		})

		Expect(err).To(MatchError(chiperr.ErrTimeout))
		Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
		Expect(time.Since(start)).To(BeNumerically(">=", cfg.Timeout))
	})

	It("should check once with a zero timeout", func() {
		calls := 0

		err := poll.Until(context.Background(), poll.Config{},
			func() (bool, error) {
				calls++
				return false, nil
			})

		Expect(err).To(MatchError(chiperr.ErrTimeout))
		Expect(calls).To(Equal(1))
	})

	It("should stop on the first error", func() {
		cause := errors.New("bus fault")
		calls := 0

		err := poll.Until(context.Background(), cfg, func() (bool, error) {
			calls++
			return false, cause
		})

		Expect(err).To(BeIdenticalTo(cause))
		Expect(calls).To(Equal(1))
	})

	It("should stop when the context is done", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cfg.Timeout = time.Hour

		err := poll.Until(ctx, cfg, func() (bool, error) {
			return false, nil
		})

		Expect(err).To(MatchError(context.Canceled))
	})
})
