package preferences_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/preferences"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var (
		path  string
		store *preferences.Store
	)

	open := func() *preferences.Store {
		s, err := preferences.Open(path, zap.NewNop().Sugar())
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(s.Close)
		return s
	}

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "prefs", "preferences.toml")
		store = open()
	})

	It("starts from defaults and writes them out", func() {
		Expect(store.Current()).To(Equal(preferences.Default()))

		data, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(MatchRegexp(`reminder_filter = ['"]upcoming['"]`))
	})

	It("persists updates across reopen", func() {
		Expect(store.UpdateFilter(preferences.FilterCompleted)).To(Succeed())
		Expect(store.UpdateSortOrder(preferences.SortAlphaZA)).To(Succeed())
		Expect(store.Close()).To(Succeed())

		reopened := open()
		Expect(reopened.Current()).To(Equal(preferences.Preferences{Filter: preferences.FilterCompleted, SortOrder: preferences.SortAlphaZA}))
	})

	It("rejects unknown values", func() {
		Expect(store.UpdateFilter("tomorrow")).ToNot(Succeed())
		Expect(store.UpdateSortOrder("random")).ToNot(Succeed())
		Expect(store.Current()).To(Equal(preferences.Default()))
	})

	It("publishes changes to watchers", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		prefs, err := store.Watch(ctx)
		Expect(err).ToNot(HaveOccurred())
		Eventually(prefs).Should(Receive(Equal(preferences.Default())))

		Expect(store.UpdateFilter(preferences.FilterOverdue)).To(Succeed())
		Eventually(prefs).Should(Receive(HaveField("Filter", preferences.FilterOverdue)))
	})

	It("does not republish an unchanged value", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		prefs, _ := store.Watch(ctx)
		Eventually(prefs).Should(Receive())

		Expect(store.UpdateFilter(preferences.FilterUpcoming)).To(Succeed())
		Consistently(prefs, 300*time.Millisecond).ShouldNot(Receive())
	})

	It("picks up edits made by other processes", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		prefs, _ := store.Watch(ctx)
		Eventually(prefs).Should(Receive())

		edited := "reminder_filter = \"overdue\"\nreminder_sort_order = \"alpha_az\"\n"
		Expect(os.WriteFile(path, []byte(edited), 0o644)).To(Succeed())

		Eventually(prefs, 2*time.Second).Should(Receive(Equal(preferences.Preferences{Filter: preferences.FilterOverdue, SortOrder: preferences.SortAlphaAZ})))
		Expect(store.Current().SortOrder).To(Equal(preferences.SortAlphaAZ))
	})

	It("falls back to defaults for unknown values in the file", func() {
		Expect(store.Close()).To(Succeed())
		Expect(os.WriteFile(path, []byte("reminder_filter = \"someday\"\nreminder_sort_order = \"latest_first\"\n"), 0o644)).To(Succeed())

		reopened := open()
		Expect(reopened.Current()).To(Equal(preferences.Preferences{Filter: preferences.FilterUpcoming, SortOrder: preferences.SortLatestFirst}))
	})

	It("refuses a malformed file", func() {
		Expect(store.Close()).To(Succeed())
		Expect(os.WriteFile(path, []byte("reminder_filter = [oops"), 0o644)).To(Succeed())

		_, err := preferences.Open(path, zap.NewNop().Sugar())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("parsing", func() {
	It("accepts every listed filter and sort order", func() {
		for _, f := range preferences.Filters {
			got, err := preferences.ParseFilter(string(f))
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(f))
		}
		for _, o := range preferences.SortOrders {
			got, err := preferences.ParseSortOrder(string(o))
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(o))
		}
	})
})
