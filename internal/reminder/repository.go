package reminder

import (
	"context"
	"time"
)

// Repository is the persistence the use-cases need. Implementations must
// replay the current collection to every new Watch subscriber and re-emit
// after each successful mutation.
type Repository interface {
	Insert(ctx context.Context, r Reminder) (int64, error)
	Update(ctx context.Context, r Reminder) error
	Delete(ctx context.Context, r Reminder) error
	Get(ctx context.Context, id int64) (Reminder, error)
	List(ctx context.Context) ([]Reminder, error)
	Watch(ctx context.Context) (<-chan []Reminder, error)
}

// Notifier schedules and withdraws notifications for reminders. Cancel and
// RemoveDisplayed are no-ops when there is nothing to act on; Schedule
// replaces any earlier schedule for the same id.
type Notifier interface {
	Schedule(ctx context.Context, id int64, at time.Time) error
	Cancel(ctx context.Context, id int64) error
	RemoveDisplayed(ctx context.Context, id int64) error
}
