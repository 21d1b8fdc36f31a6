// Package notify turns reminder schedules into delivered notifications.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/reminder"
)

const sendTimeout = 30 * time.Second

// Lookup resolves a reminder at delivery time, so the message reflects the
// stored state rather than whatever was current when it was scheduled.
type Lookup interface {
	Get(ctx context.Context, id int64) (reminder.Reminder, error)
}

type pending struct {
	at    time.Time
	timer *time.Timer
	gen   uint64
}

// Scheduler keeps one timer per reminder id and hands due reminders to a
// Sender. It satisfies reminder.Notifier.
type Scheduler struct {
	sender Sender
	lookup Lookup
	clk    clock.Clock
	logger *zap.SugaredLogger

	mu        sync.Mutex
	timers    map[int64]*pending
	displayed map[int64][]string
	gen       uint64
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler delivering through sender.
func NewScheduler(sender Sender, lookup Lookup, clk clock.Clock, logger *zap.SugaredLogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sender:    sender,
		lookup:    lookup,
		clk:       clk,
		logger:    logger,
		timers:    make(map[int64]*pending),
		displayed: make(map[int64][]string),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Schedule arms (or re-arms) the notification for id. A time in the past
// fires right away.
func (s *Scheduler) Schedule(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("notification scheduler is closed")
	}

	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
	}

	delay := at.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}

	s.gen++
	gen := s.gen
	s.timers[id] = &pending{
		at:    at,
		gen:   gen,
		timer: time.AfterFunc(delay, func() { s.fire(id, gen) }),
	}

	s.logger.Debugw("notification scheduled", "reminder", id, "at", at)
	return nil
}

// Cancel disarms the pending notification for id, if any.
func (s *Scheduler) Cancel(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
		delete(s.timers, id)
		s.logger.Debugw("notification cancelled", "reminder", id)
	}
	return nil
}

// RemoveDisplayed takes down every notification already delivered for id.
func (s *Scheduler) RemoveDisplayed(ctx context.Context, id int64) error {
	s.mu.Lock()
	handles := s.displayed[id]
	delete(s.displayed, id)
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := s.sender.Retract(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports when id is scheduled to fire.
func (s *Scheduler) Pending(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return p.at, true
}

// Displayed returns the sender handles currently shown for id.
func (s *Scheduler) Displayed(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.displayed[id]...)
}

// Close stops all timers and waits for in-flight deliveries.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Scheduler) fire(id int64, gen uint64) {
	s.mu.Lock()
	p, ok := s.timers[id]
	if s.closed || !ok || p.gen != gen {
		// replaced or cancelled after the timer had already started
		s.mu.Unlock()
		return
	}
	at := p.at
	delete(s.timers, id)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()

	r, err := s.lookup.Get(ctx, id)
	if err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			s.logger.Debugw("dropping notification for deleted reminder", "reminder", id)
			return
		}
		s.logger.Errorw("failed to load reminder for notification", "reminder", id, "err", err)
		return
	}
	if r.Completed || !r.Notify {
		s.logger.Debugw("dropping stale notification", "reminder", id)
		return
	}
	// A reminder moved since the timer was armed waits for the next resync.
	// Postgres keeps start times to the microsecond.
	if !r.StartDateTime.Truncate(time.Microsecond).Equal(at.Truncate(time.Microsecond)) {
		s.logger.Debugw("dropping notification for moved reminder", "reminder", id, "armed_for", at, "now_due", r.StartDateTime)
		return
	}

	msg := Message{
		ReminderID: r.ID,
		Name:       r.Name,
		Notes:      r.Notes,
		At:         r.StartDateTime,
	}
	if r.RepeatInterval != nil {
		msg.Repeat = r.RepeatInterval.String()
	}

	handle, err := s.sender.Send(ctx, msg)
	if err != nil {
		s.logger.Errorw("failed to deliver notification", "reminder", id, "err", err)
		return
	}

	s.mu.Lock()
	s.displayed[id] = append(s.displayed[id], handle)
	s.mu.Unlock()

	s.logger.Infow("notification delivered", "reminder", id, "name", r.Name)
}
