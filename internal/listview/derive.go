// Package listview derives the ordered list of reminders the user sees
// from the reminder collection and the display preferences.
package listview

import (
	"slices"
	"strings"
	"time"

	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/reminder"
)

// Matches reports whether r belongs under filter f at instant now. The three
// filters partition any collection.
func Matches(r reminder.Reminder, f preferences.Filter, now time.Time) bool {
	switch f {
	case preferences.FilterUpcoming:
		return !r.Completed && !r.StartDateTime.Before(now)
	case preferences.FilterOverdue:
		return !r.Completed && r.StartDateTime.Before(now)
	case preferences.FilterCompleted:
		return r.Completed
	}
	return false
}

// FilterBy returns the reminders matching f, in input order.
func FilterBy(items []reminder.Reminder, f preferences.Filter, now time.Time) []reminder.Reminder {
	out := make([]reminder.Reminder, 0, len(items))
	for _, r := range items {
		if Matches(r, f, now) {
			out = append(out, r)
		}
	}
	return out
}

// SortBy returns a stably sorted copy of items. Names compare by byte order,
// so case matters.
func SortBy(items []reminder.Reminder, order preferences.SortOrder) []reminder.Reminder {
	out := slices.Clone(items)

	var cmp func(a, b reminder.Reminder) int
	switch order {
	case preferences.SortEarliestFirst:
		cmp = func(a, b reminder.Reminder) int { return a.StartDateTime.Compare(b.StartDateTime) }
	case preferences.SortLatestFirst:
		cmp = func(a, b reminder.Reminder) int { return b.StartDateTime.Compare(a.StartDateTime) }
	case preferences.SortAlphaAZ:
		cmp = func(a, b reminder.Reminder) int { return strings.Compare(a.Name, b.Name) }
	case preferences.SortAlphaZA:
		cmp = func(a, b reminder.Reminder) int { return strings.Compare(b.Name, a.Name) }
	default:
		return out
	}

	slices.SortStableFunc(out, cmp)
	return out
}

// Search keeps reminders whose name contains query, ignoring case. An empty
// query returns items unchanged.
func Search(items []reminder.Reminder, query string) []reminder.Reminder {
	if query == "" {
		return items
	}
	q := strings.ToLower(query)

	out := make([]reminder.Reminder, 0, len(items))
	for _, r := range items {
		if strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
		}
	}
	return out
}

// Derive filters, sorts and then narrows by query.
func Derive(items []reminder.Reminder, p preferences.Preferences, query string, now time.Time) []reminder.Reminder {
	return Search(SortBy(FilterBy(items, p.Filter, now), p.SortOrder), query)
}
