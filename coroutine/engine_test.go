package coroutine_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/memkv/coroutine"
)

var _ = Describe("Engine", func() {
	It("runs a single coroutine to completion when yielded into", func() {
		e := coroutine.New()
		ran := false

		e.Run(func(h coroutine.Handle) {
			ran = true
		})

		Eventually(func() int { return e.AliveCount() }, time.Second).Should(Equal(1))
		e.Yield()
		Expect(ran).To(BeTrue())
		Expect(e.AliveCount()).To(Equal(0))
		Expect(e.Current()).To(Equal(coroutine.Handle(0)))
	})

	It("suspends a coroutine on self-block and resumes it on unblock", func() {
		e := coroutine.New()
		var stage int

		e.Run(func(h coroutine.Handle) {
			stage = 1
			e.Block(0)
			stage = 2
		})

		e.Yield()
		Expect(stage).To(Equal(1))
		Expect(e.AliveCount()).To(Equal(0))
		Expect(e.BlockedCount()).To(Equal(1))

		e.Unblock(1)
		Expect(e.AliveCount()).To(Equal(1))
		Expect(stage).To(Equal(1))

		e.Yield()
		Eventually(func() int { return stage }, time.Second).Should(Equal(2))
		Expect(e.AliveCount()).To(Equal(0))
	})

	It("sets Current to the coroutine holding the token while it runs", func() {
		e := coroutine.New()
		var seenCurrent coroutine.Handle

		h := e.Run(func(h coroutine.Handle) {
			seenCurrent = e.Current()
			e.Block(0)
		})

		e.Yield()
		Expect(seenCurrent).To(Equal(h))
		Expect(e.Current()).To(Equal(coroutine.Handle(0)))
	})

	It("round-robins between alive coroutines across successive yields", func() {
		e := coroutine.New()
		var order []int

		for i := 1; i <= 3; i++ {
			i := i
			e.Run(func(h coroutine.Handle) {
				order = append(order, i)
				e.Block(0)
			})
		}

		e.Yield()
		e.Yield()
		e.Yield()

		Expect(order).To(Equal([]int{1, 2, 3}))
		Expect(e.BlockedCount()).To(Equal(3))
	})

	It("runs every unblocked coroutine to its next self-block via RunAlive", func() {
		e := coroutine.New()
		var completed int

		for i := 0; i < 4; i++ {
			e.Run(func(h coroutine.Handle) {
				completed++
				e.Block(0)
				completed++
			})
		}

		for h := coroutine.Handle(1); h <= 4; h++ {
			e.Unblock(h)
		}

		e.RunAlive()
		Expect(completed).To(Equal(4))
		Expect(e.AliveCount()).To(Equal(0))
		Expect(e.BlockedCount()).To(Equal(4))

		for h := coroutine.Handle(1); h <= 4; h++ {
			e.Unblock(h)
		}
		e.RunAlive()
		Expect(completed).To(Equal(8))
	})

	It("treats a redundant unblock of an already-alive coroutine as a no-op", func() {
		e := coroutine.New()
		h := e.Run(func(h coroutine.Handle) {
			e.Block(0)
		})

		e.Unblock(h)
		Expect(e.AliveCount()).To(Equal(1))

		e.Yield()
		Expect(e.BlockedCount()).To(Equal(1))
	})

	It("keeps alive and blocked mutually exclusive across a mixed workload", func() {
		e := coroutine.New()
		const n = 8
		rounds := make([]int, n)

		for i := 0; i < n; i++ {
			idx := i
			e.Run(func(h coroutine.Handle) {
				for rounds[idx] < 3 {
					rounds[idx]++
					e.Block(0)
				}
			})
		}

		for round := 0; round < 3; round++ {
			for h := coroutine.Handle(1); h <= n; h++ {
				e.Unblock(h)
			}
			e.RunAlive()
			Expect(e.AliveCount()).To(Equal(0))
		}

		for _, r := range rounds {
			Expect(r).To(Equal(3))
		}
	})
})
