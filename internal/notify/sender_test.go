package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("formatHTML", func() {
	It("escapes user text", func() {
		out := formatHTML(Message{
			Name:   "Buy <milk> & eggs",
			Notes:  "2 > 1",
			At:     time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
			Repeat: "every week",
		})

		Expect(out).To(ContainSubstring("<b>Buy &lt;milk&gt; &amp; eggs</b>"))
		Expect(out).To(ContainSubstring("<i>2 &gt; 1</i>"))
		Expect(out).To(ContainSubstring("Mon Jan 22 09:00 UTC · every week"))
	})

	It("omits empty notes", func() {
		out := formatHTML(Message{Name: "Plain", At: time.Now()})
		Expect(out).ToNot(ContainSubstring("<i>"))
	})
})

var _ = Describe("LogSender", func() {
	It("hands out distinct handles", func() {
		s := NewLogSender(zap.NewNop().Sugar())
		a, err := s.Send(context.Background(), Message{Name: "a"})
		Expect(err).ToNot(HaveOccurred())
		b, err := s.Send(context.Background(), Message{Name: "b"})
		Expect(err).ToNot(HaveOccurred())

		Expect(a).ToNot(Equal(b))
		Expect(s.Retract(context.Background(), a)).To(Succeed())
	})
})

var _ = Describe("NewTelegramSender", func() {
	It("rejects a non-numeric chat id", func() {
		_, err := NewTelegramSender("123:abc", "@channel")
		Expect(err).To(MatchError(ContainSubstring("invalid telegram chat id")))
	})
})
