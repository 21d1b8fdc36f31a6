package reminder

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength bounds the reminder name, in runes.
const MaxNameLength = 100

// MaxRepeatAmount bounds RepeatInterval.Amount so that an interval always
// fits in a time.Duration.
const MaxRepeatAmount = 1000

// Unit is the calendar unit a repeat interval is counted in.
type Unit string

// Recognized repeat units.
const (
	UnitDay  Unit = "day"
	UnitWeek Unit = "week"
)

// Duration returns the fixed length of one unit.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitDay:
		return 24 * time.Hour
	case UnitWeek:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ParseUnit accepts "day"/"days" and "week"/"weeks" in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "days":
		return UnitDay, nil
	case "week", "weeks":
		return UnitWeek, nil
	}
	return "", &ValidationError{Field: "repeat_unit", Reason: fmt.Sprintf("unknown unit %q (supported: day, week)", s)}
}

// RepeatInterval is an immutable (amount, unit) pair.
type RepeatInterval struct {
	Amount int  `json:"amount"`
	Unit   Unit `json:"unit"`
}

// Duration is Amount times the unit length.
func (ri RepeatInterval) Duration() time.Duration {
	return time.Duration(ri.Amount) * ri.Unit.Duration()
}

func (ri RepeatInterval) String() string {
	if ri.Amount == 1 {
		return "every " + string(ri.Unit)
	}
	return fmt.Sprintf("every %d %ss", ri.Amount, ri.Unit)
}

// Reminder is a single persisted reminder. A recurring reminder is one row
// whose StartDateTime moves forward as occurrences are completed.
//
// Values are never mutated in place once shared; use With to derive a
// changed copy.
type Reminder struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	StartDateTime  time.Time       `json:"start_date_time"`
	RepeatInterval *RepeatInterval `json:"repeat_interval,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Notify         bool            `json:"is_notification_sent"`
	Completed      bool            `json:"is_completed"`
}

// IsRepeating reports whether the reminder has a repeat interval.
func (r Reminder) IsRepeating() bool {
	return r.RepeatInterval != nil
}

// Change modifies a private copy of a reminder inside With.
type Change func(*Reminder)

// With returns a copy of r with the changes applied. The repeat interval is
// cloned so the copy never aliases r's interval.
func (r Reminder) With(changes ...Change) Reminder {
	out := r
	if r.RepeatInterval != nil {
		ri := *r.RepeatInterval
		out.RepeatInterval = &ri
	}
	for _, c := range changes {
		c(&out)
	}
	return out
}

func WithID(id int64) Change {
	return func(r *Reminder) { r.ID = id }
}

func WithName(name string) Change {
	return func(r *Reminder) { r.Name = name }
}

func WithStart(t time.Time) Change {
	return func(r *Reminder) { r.StartDateTime = t }
}

// WithRepeat sets the interval; nil makes the reminder one-time.
func WithRepeat(ri *RepeatInterval) Change {
	return func(r *Reminder) {
		if ri == nil {
			r.RepeatInterval = nil
			return
		}
		c := *ri
		r.RepeatInterval = &c
	}
}

func WithNotes(notes string) Change {
	return func(r *Reminder) { r.Notes = notes }
}

func WithNotify(on bool) Change {
	return func(r *Reminder) { r.Notify = on }
}

func WithCompleted(done bool) Change {
	return func(r *Reminder) { r.Completed = done }
}

// Validate checks the entity invariants.
func (r Reminder) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	if r.StartDateTime.IsZero() {
		return &ValidationError{Field: "start_date_time", Reason: "is required"}
	}
	if ri := r.RepeatInterval; ri != nil {
		if ri.Amount < 1 {
			return &ValidationError{Field: "repeat_amount", Reason: "must be at least 1"}
		}
		if ri.Amount > MaxRepeatAmount {
			return &ValidationError{Field: "repeat_amount", Reason: fmt.Sprintf("must be at most %d", MaxRepeatAmount)}
		}
		if ri.Unit.Duration() == 0 {
			return &ValidationError{Field: "repeat_unit", Reason: fmt.Sprintf("unknown unit %q", ri.Unit)}
		}
	}
	return nil
}

// ValidateNew applies Validate plus the creation rule that the first
// occurrence lies strictly after now.
func (r Reminder) ValidateNew(now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !r.StartDateTime.After(now) {
		return &ValidationError{Field: "start_date_time", Reason: "must be in the future"}
	}
	return nil
}
