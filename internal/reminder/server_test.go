package reminder

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/worker"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubLister struct {
	repo      *memRepo
	lastQuery string
	lastPrefs preferences.Preferences
}

func (l *stubLister) Snapshot(ctx context.Context, query string, override preferences.Preferences) ([]Reminder, error) {
	l.lastQuery = query
	l.lastPrefs = override
	return l.repo.List(ctx)
}

type stubPrefs struct {
	mu sync.Mutex
	p  preferences.Preferences
}

func (s *stubPrefs) Current() preferences.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

func (s *stubPrefs) UpdateFilter(f preferences.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Filter = f
	return nil
}

func (s *stubPrefs) UpdateSortOrder(o preferences.SortOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.SortOrder = o
	return nil
}

func call(handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	Expect(err).ToNot(HaveOccurred())
	return res
}

func resultText(res *mcp.CallToolResult) string {
	var out string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

var _ = Describe("Server", func() {
	var (
		log      *callLog
		repo     *memRepo
		notifier *recordingNotifier
		lister   *stubLister
		prefs    *stubPrefs
		queue    *worker.Queue
		srv      *Server
		now      time.Time
	)

	BeforeEach(func() {
		log = &callLog{}
		repo = newMemRepo(log)
		notifier = newRecordingNotifier(log)
		now = time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
		clk := clock.NewFake()
		clk.Set(now)

		svc := NewService(repo, notifier, WithClock(clk))
		lister = &stubLister{repo: repo}
		prefs = &stubPrefs{p: preferences.Default()}
		queue = worker.NewQueue(zap.NewNop().Sugar(), 2)
		DeferCleanup(func() { _ = queue.Shutdown(context.Background()) })

		srv = NewServer(svc, lister, prefs, queue, clk)
	})

	It("registers every tool", func() {
		resp := srv.MCPServer().HandleMessage(context.Background(),
			json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
		out, err := json.Marshal(resp)
		Expect(err).ToNot(HaveOccurred())

		for _, name := range []string{
			"add_reminder", "update_reminder", "get_reminder", "list_reminders",
			"complete_reminder", "complete_series", "delete_reminder",
			"set_filter", "set_sort_order",
		} {
			Expect(string(out)).To(ContainSubstring(`"name":"` + name + `"`))
		}
	})

	Describe("add_reminder", func() {
		It("creates a recurring reminder", func() {
			res := call(srv.handleAddReminder, map[string]any{
				"name":          "Water plants",
				"start":         "2024-01-23T08:00:00Z",
				"repeat_amount": float64(3),
				"repeat_unit":   "days",
			})
			Expect(res.IsError).To(BeFalse(), resultText(res))

			var added Reminder
			Expect(json.Unmarshal([]byte(resultText(res)), &added)).To(Succeed())
			Expect(added.ID).To(Equal(int64(1)))
			Expect(added.RepeatInterval).To(Equal(&RepeatInterval{Amount: 3, Unit: UnitDay}))
			Expect(added.Notify).To(BeTrue())
			Expect(log.all()).To(Equal([]string{"insert:1", "schedule:1"}))
		})

		DescribeTable("rejects invalid input before touching storage",
			func(args map[string]any, fragment string) {
				res := call(srv.handleAddReminder, args)
				Expect(res.IsError).To(BeTrue())
				Expect(resultText(res)).To(ContainSubstring(fragment))
				Expect(log.all()).To(BeEmpty())
			},
			Entry("past start", map[string]any{"name": "x", "start": "2024-01-01T00:00:00Z"}, "future"),
			Entry("bad date", map[string]any{"name": "x", "start": "tomorrow"}, "RFC3339"),
			Entry("empty name", map[string]any{"name": " ", "start": "2024-02-01T00:00:00Z"}, "name"),
			Entry("bad unit", map[string]any{"name": "x", "start": "2024-02-01T00:00:00Z", "repeat_amount": float64(1), "repeat_unit": "month"}, "unit"),
			Entry("negative amount", map[string]any{"name": "x", "start": "2024-02-01T00:00:00Z", "repeat_amount": float64(-2)}, "repeat_amount"),
		)
	})

	Describe("update_reminder", func() {
		It("changes only the given fields", func() {
			id, _ := repo.Insert(context.Background(), Reminder{
				Name: "Run", StartDateTime: now.Add(time.Hour), Notes: "5k", Notify: true,
				RepeatInterval: &RepeatInterval{Amount: 1, Unit: UnitDay},
			})

			res := call(srv.handleUpdateReminder, map[string]any{"id": float64(id), "repeat_unit": "week", "notify": false})
			Expect(res.IsError).To(BeFalse(), resultText(res))

			got, _ := repo.Get(context.Background(), id)
			Expect(got.Name).To(Equal("Run"))
			Expect(got.Notes).To(Equal("5k"))
			Expect(got.Notify).To(BeFalse())
			Expect(got.RepeatInterval).To(Equal(&RepeatInterval{Amount: 1, Unit: UnitWeek}))
		})

		It("turns a recurring reminder into a one-time one with amount 0", func() {
			id, _ := repo.Insert(context.Background(), Reminder{
				Name: "Run", StartDateTime: now.Add(time.Hour),
				RepeatInterval: &RepeatInterval{Amount: 1, Unit: UnitDay},
			})

			res := call(srv.handleUpdateReminder, map[string]any{"id": float64(id), "repeat_amount": float64(0)})
			Expect(res.IsError).To(BeFalse(), resultText(res))

			got, _ := repo.Get(context.Background(), id)
			Expect(got.RepeatInterval).To(BeNil())
		})

		It("reports unknown ids", func() {
			res := call(srv.handleUpdateReminder, map[string]any{"id": float64(9), "name": "x"})
			Expect(res.IsError).To(BeTrue())
			Expect(resultText(res)).To(ContainSubstring("not found"))
		})
	})

	Describe("completion", func() {
		It("advances a recurring reminder", func() {
			id, _ := repo.Insert(context.Background(), Reminder{
				Name: "Weekly", StartDateTime: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
				RepeatInterval: &RepeatInterval{Amount: 1, Unit: UnitWeek},
			})

			res := call(srv.handleCompleteReminder, map[string]any{"id": float64(id)})
			Expect(res.IsError).To(BeFalse(), resultText(res))
			Expect(resultText(res)).To(ContainSubstring("2024-01-29T08:00:00Z"))
		})

		It("refuses to end the series of a one-time reminder", func() {
			id, _ := repo.Insert(context.Background(), Reminder{Name: "Once", StartDateTime: now})

			res := call(srv.handleCompleteSeries, map[string]any{"id": float64(id)})
			Expect(res.IsError).To(BeTrue())
			Expect(resultText(res)).To(ContainSubstring("complete_reminder"))
		})

		It("deletes through the worker queue", func() {
			id, _ := repo.Insert(context.Background(), Reminder{Name: "Gone", StartDateTime: now})

			res := call(srv.handleDeleteReminder, map[string]any{"id": float64(id)})
			Expect(res.IsError).To(BeFalse(), resultText(res))

			_, err := repo.Get(context.Background(), id)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("requires a positive id", func() {
			res := call(srv.handleCompleteReminder, map[string]any{})
			Expect(res.IsError).To(BeTrue())
		})
	})

	Describe("list_reminders", func() {
		It("passes overrides and the query to the lister", func() {
			_, _ = repo.Insert(context.Background(), Reminder{Name: "Milk", StartDateTime: now})

			res := call(srv.handleListReminders, map[string]any{"filter": "overdue", "query": "mi"})
			Expect(res.IsError).To(BeFalse())
			Expect(lister.lastQuery).To(Equal("mi"))
			Expect(lister.lastPrefs).To(Equal(preferences.Preferences{Filter: preferences.FilterOverdue}))
			Expect(resultText(res)).To(ContainSubstring("Milk"))
		})

		It("rejects unknown sort orders", func() {
			res := call(srv.handleListReminders, map[string]any{"sort": "random"})
			Expect(res.IsError).To(BeTrue())
		})

		It("says so when nothing matches", func() {
			res := call(srv.handleListReminders, map[string]any{})
			Expect(resultText(res)).To(Equal("No reminders found."))
		})
	})

	It("saves preferences", func() {
		Expect(call(srv.handleSetFilter, map[string]any{"filter": "completed"}).IsError).To(BeFalse())
		Expect(call(srv.handleSetSortOrder, map[string]any{"sort": "alpha_za"}).IsError).To(BeFalse())
		Expect(call(srv.handleSetFilter, map[string]any{"filter": "someday"}).IsError).To(BeTrue())

		Expect(prefs.Current()).To(Equal(preferences.Preferences{
			Filter:    preferences.FilterCompleted,
			SortOrder: preferences.SortAlphaZA,
		}))
	})
})
