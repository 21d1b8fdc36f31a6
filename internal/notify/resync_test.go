package notify_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	. "github.com/notexe/reminders/internal/notify"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (c *countingSyncer) Resync(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

var _ = Describe("Resyncer", func() {
	It("runs once on start and then on schedule", func() {
		syncer := &countingSyncer{}
		r, err := NewResyncer("@every 1s", syncer, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())

		r.Start(context.Background())
		Expect(syncer.calls.Load()).To(Equal(int32(1)))

		Eventually(syncer.calls.Load, 3*time.Second, 100*time.Millisecond).Should(BeNumerically(">=", 2))
		r.Stop()
	})

	It("keeps going after a failed run", func() {
		syncer := &countingSyncer{err: errors.New("db locked")}
		r, err := NewResyncer("@every 1h", syncer, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())

		r.Run(context.Background())
		r.Run(context.Background())
		Expect(syncer.calls.Load()).To(Equal(int32(2)))
	})

	It("rejects a malformed schedule", func() {
		_, err := NewResyncer("every so often", &countingSyncer{}, zap.NewNop().Sugar())
		Expect(err).To(HaveOccurred())
	})
})
