package reminder

import (
	"context"
	"fmt"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

// Service implements the reminder lifecycle. Every operation persists first
// and only then touches notifications, so a notification is never scheduled
// against state that failed to save. Notification errors are logged and
// dropped: the stored reminder is the source of truth.
type Service struct {
	repo     Repository
	notifier Notifier
	clk      clock.Clock
	logger   *zap.SugaredLogger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock used to compute next occurrences.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clk = clk }
}

// WithLogger sets the logger for swallowed notification errors.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the use-cases to a repository and a notifier.
func NewService(repo Repository, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: notifier,
		clk:      clock.New(),
		logger:   zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add stores a new reminder and schedules its notification if enabled.
// The returned value carries the generated id.
func (s *Service) Add(ctx context.Context, r Reminder) (Reminder, error) {
	id, err := s.repo.Insert(ctx, r.With(WithID(0)))
	if err != nil {
		return Reminder{}, fmt.Errorf("failed to add reminder: %w", err)
	}
	saved := r.With(WithID(id))

	if saved.Notify {
		s.schedule(ctx, saved)
	}
	return saved, nil
}

// Update replaces the stored reminder. Any pending notification is always
// cancelled and re-created only if notifications stay enabled, since an edit
// may move the time or switch notifications off.
func (s *Service) Update(ctx context.Context, r Reminder) error {
	if err := s.repo.Update(ctx, r); err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}

	s.cancel(ctx, r.ID)
	if r.Notify {
		s.schedule(ctx, r)
	}
	return nil
}

// Delete removes the reminder in any state and cancels its notification.
func (s *Service) Delete(ctx context.Context, r Reminder) error {
	if err := s.repo.Delete(ctx, r); err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	s.cancel(ctx, r.ID)
	return nil
}

// CompleteOnetime marks a one-time reminder completed. It is terminal, so
// nothing is rescheduled.
func (s *Service) CompleteOnetime(ctx context.Context, r Reminder) error {
	if r.IsRepeating() {
		return fmt.Errorf("reminder %d repeats %s: %w", r.ID, r.RepeatInterval, ErrWrongKind)
	}

	if err := s.repo.Update(ctx, r.With(WithCompleted(true))); err != nil {
		return fmt.Errorf("failed to complete reminder: %w", err)
	}

	s.cancel(ctx, r.ID)
	return nil
}

// CompleteOccurrence marks the current occurrence of a recurring reminder
// done by moving it to the next grid point after now. The series stays open.
func (s *Service) CompleteOccurrence(ctx context.Context, r Reminder) error {
	if !r.IsRepeating() {
		return fmt.Errorf("reminder %d is one-time: %w", r.ID, ErrWrongKind)
	}

	next := NextOccurrence(r.StartDateTime, *r.RepeatInterval, s.clk.Now())
	advanced := r.With(WithStart(next))

	if err := s.repo.Update(ctx, advanced); err != nil {
		return fmt.Errorf("failed to advance reminder: %w", err)
	}

	s.cancel(ctx, r.ID)
	if advanced.Notify {
		s.schedule(ctx, advanced)
	}
	return nil
}

// CompleteSeries ends a recurring reminder for good. Besides cancelling the
// future notification, one that is already on screen is taken down.
func (s *Service) CompleteSeries(ctx context.Context, r Reminder) error {
	if !r.IsRepeating() {
		return fmt.Errorf("reminder %d is one-time: %w", r.ID, ErrWrongKind)
	}

	if err := s.repo.Update(ctx, r.With(WithCompleted(true))); err != nil {
		return fmt.Errorf("failed to end reminder series: %w", err)
	}

	s.cancel(ctx, r.ID)
	if err := s.notifier.RemoveDisplayed(ctx, r.ID); err != nil {
		s.logger.Warnw("failed to remove displayed notification", "reminder", r.ID, "err", err)
	}
	return nil
}

// Complete is "mark done": one-time reminders complete, recurring ones
// advance to their next occurrence.
func (s *Service) Complete(ctx context.Context, r Reminder) error {
	if r.IsRepeating() {
		return s.CompleteOccurrence(ctx, r)
	}
	return s.CompleteOnetime(ctx, r)
}

// Get returns one reminder by id.
func (s *Service) Get(ctx context.Context, id int64) (Reminder, error) {
	return s.repo.Get(ctx, id)
}

// List returns the whole collection once.
func (s *Service) List(ctx context.Context) ([]Reminder, error) {
	return s.repo.List(ctx)
}

// Watch returns the live collection: the current snapshot first, then one
// snapshot per change, until ctx is done.
func (s *Service) Watch(ctx context.Context) (<-chan []Reminder, error) {
	return s.repo.Watch(ctx)
}

// Resync re-derives notification schedules from stored state: every open
// reminder with notifications on and a start in the future is scheduled,
// everything else is cancelled. Returns how many were scheduled.
func (s *Service) Resync(ctx context.Context) (int, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list reminders: %w", err)
	}

	now := s.clk.Now()
	scheduled := 0
	for _, r := range all {
		if r.Notify && !r.Completed && r.StartDateTime.After(now) {
			s.schedule(ctx, r)
			scheduled++
			continue
		}
		s.cancel(ctx, r.ID)
	}
	return scheduled, nil
}

func (s *Service) schedule(ctx context.Context, r Reminder) {
	if err := s.notifier.Schedule(ctx, r.ID, r.StartDateTime); err != nil {
		s.logger.Warnw("failed to schedule notification", "reminder", r.ID, "at", r.StartDateTime, "err", err)
	}
}

func (s *Service) cancel(ctx context.Context, id int64) {
	if err := s.notifier.Cancel(ctx, id); err != nil {
		s.logger.Warnw("failed to cancel notification", "reminder", id, "err", err)
	}
}
