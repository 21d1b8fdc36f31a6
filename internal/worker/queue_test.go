package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	. "github.com/notexe/reminders/internal/worker"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue", func() {
	var q *Queue

	BeforeEach(func() {
		q = NewQueue(zap.NewNop().Sugar(), 2)
	})

	It("reports the task result once", func() {
		boom := errors.New("boom")

		Eventually(q.Submit("ok", func(context.Context) error { return nil })).Should(Receive(BeNil()))
		Eventually(q.Submit("fail", func(context.Context) error { return boom })).Should(Receive(MatchError(boom)))
	})

	It("finishes a task after the submitter stops waiting", func() {
		var done atomic.Bool
		release := make(chan struct{})

		reqCtx, cancel := context.WithCancel(context.Background())
		result := q.Submit("slow", func(ctx context.Context) error {
			<-release
			if ctx.Err() != nil {
				return ctx.Err()
			}
			done.Store(true)
			return nil
		})

		cancel()
		Expect(reqCtx.Err()).To(HaveOccurred())
		close(release)

		Eventually(result).Should(Receive(BeNil()))
		Expect(done.Load()).To(BeTrue())
	})

	It("limits concurrency", func() {
		var running, peak atomic.Int32
		release := make(chan struct{})

		for i := 0; i < 5; i++ {
			q.Go("busy", func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return nil
			})
		}

		Eventually(running.Load).Should(Equal(int32(2)))
		Consistently(running.Load, 100*time.Millisecond).Should(Equal(int32(2)))
		close(release)

		Expect(q.Shutdown(context.Background())).To(Succeed())
		Expect(peak.Load()).To(Equal(int32(2)))
	})

	It("waits for running tasks on shutdown and then refuses new ones", func() {
		var done atomic.Bool
		q.Go("last", func(context.Context) error {
			time.Sleep(50 * time.Millisecond)
			done.Store(true)
			return nil
		})

		Expect(q.Shutdown(context.Background())).To(Succeed())
		Expect(done.Load()).To(BeTrue())
		Expect(q.Submit("late", func(context.Context) error { return nil })).To(Receive(MatchError(ErrStopped)))
	})

	It("cancels the task context when shutdown times out", func() {
		q.Go("stuck", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		Expect(q.Shutdown(ctx)).To(MatchError(context.DeadlineExceeded))
	})
})
