package pool_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/memkv/pool"
)

var _ = Describe("Pool", func() {
	Describe("Execute", func() {
		It("rejects tasks when the pool is not running", func() {
			p := pool.New(pool.Config{Low: 1, High: 2, MaxQueue: 4, IdleTimeout: 50 * time.Millisecond}, nil, nil)
			Expect(p.Execute(func() {})).To(BeFalse())
		})

		It("rejects tasks once the queue is saturated", func() {
			p := pool.New(pool.Config{Low: 1, High: 1, MaxQueue: 1, IdleTimeout: time.Second}, nil, nil)
			p.Start()
			defer p.Stop(true)

			block := make(chan struct{})
			Expect(p.Execute(func() { <-block })).To(BeTrue())
			Eventually(p.QueueLen, time.Second).Should(Equal(0))
			Expect(p.Execute(func() {})).To(BeTrue())
			Expect(p.Execute(func() {})).To(BeFalse())
			close(block)
		})
	})

	Describe("Elasticity", func() {
		It("grows threadsTotal toward High under sustained load", func() {
			p := pool.New(pool.Config{Low: 1, High: 4, MaxQueue: 8, IdleTimeout: time.Second}, nil, nil)
			p.Start()
			defer p.Stop(true)

			block := make(chan struct{})
			for i := 0; i < 4; i++ {
				Expect(p.Execute(func() { <-block })).To(BeTrue())
			}

			Eventually(func() int {
				total, _ := p.Workers()
				return total
			}, time.Second).Should(Equal(4))

			close(block)
		})
	})

	Describe("Reaping", func() {
		It("shrinks threadsTotal back toward Low after the idle timeout", func() {
			p := pool.New(pool.Config{Low: 1, High: 4, MaxQueue: 8, IdleTimeout: 20 * time.Millisecond}, nil, nil)
			p.Start()
			defer p.Stop(true)

			block := make(chan struct{})
			for i := 0; i < 4; i++ {
				Expect(p.Execute(func() { <-block })).To(BeTrue())
			}
			Eventually(func() int {
				total, _ := p.Workers()
				return total
			}, time.Second).Should(Equal(4))
			close(block)

			Eventually(func() int {
				total, _ := p.Workers()
				return total
			}, 2*time.Second, 10*time.Millisecond).Should(Equal(1))
		})

		It("never lets threadsIdle go negative", func() {
			p := pool.New(pool.Config{Low: 2, High: 6, MaxQueue: 32, IdleTimeout: 5 * time.Millisecond}, nil, nil)
			p.Start()
			defer p.Stop(true)

			var wg sync.WaitGroup
			var minIdle int32
			stop := make(chan struct{})
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						_, idle := p.Workers()
						if int32(idle) < atomic.LoadInt32(&minIdle) {
							atomic.StoreInt32(&minIdle, int32(idle))
						}
					}
				}
			}()

			for i := 0; i < 200; i++ {
				p.Execute(func() {})
			}
			time.Sleep(100 * time.Millisecond)
			close(stop)
			wg.Wait()

			Expect(atomic.LoadInt32(&minIdle)).To(BeNumerically(">=", 0))
		})
	})

	Describe("Graceful shutdown", func() {
		It("runs every enqueued task before Stop(true) returns", func() {
			p := pool.New(pool.Config{Low: 2, High: 4, MaxQueue: 64, IdleTimeout: time.Second}, nil, nil)
			p.Start()

			var executed int32
			for i := 0; i < 50; i++ {
				Expect(p.Execute(func() { atomic.AddInt32(&executed, 1) })).To(BeTrue())
			}

			p.Stop(true)

			Expect(atomic.LoadInt32(&executed)).To(Equal(int32(50)))
			Expect(p.State()).To(Equal(pool.Stopped))
			total, _ := p.Workers()
			Expect(total).To(Equal(0))
		})

		It("goes straight to Stopped when no workers exist", func() {
			p := pool.New(pool.Config{Low: 0, High: 2, MaxQueue: 4, IdleTimeout: time.Second}, nil, nil)
			p.Start()
			p.Stop(true)
			Expect(p.State()).To(Equal(pool.Stopped))
		})
	})

	Describe("Start idempotency", func() {
		It("is a no-op when already Running", func() {
			p := pool.New(pool.Config{Low: 1, High: 2, MaxQueue: 4, IdleTimeout: time.Second}, nil, nil)
			p.Start()
			p.Start()
			total, _ := p.Workers()
			Expect(total).To(Equal(1))
			p.Stop(true)
		})
	})
})
