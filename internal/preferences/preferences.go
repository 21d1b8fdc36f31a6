// Package preferences holds the user's list display choices.
package preferences

import "fmt"

// Filter selects which reminders the list shows.
type Filter string

const (
	FilterUpcoming  Filter = "upcoming"
	FilterOverdue   Filter = "overdue"
	FilterCompleted Filter = "completed"
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterUpcoming, FilterOverdue, FilterCompleted}

// ParseFilter validates a filter name.
func ParseFilter(s string) (Filter, error) {
	for _, f := range Filters {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q (supported: upcoming, overdue, completed)", s)
}

// SortOrder selects how the list is ordered.
type SortOrder string

const (
	SortEarliestFirst SortOrder = "earliest_first"
	SortLatestFirst   SortOrder = "latest_first"
	SortAlphaAZ       SortOrder = "alpha_az"
	SortAlphaZA       SortOrder = "alpha_za"
)

// SortOrders lists every sort order.
var SortOrders = []SortOrder{SortEarliestFirst, SortLatestFirst, SortAlphaAZ, SortAlphaZA}

// ParseSortOrder validates a sort order name.
func ParseSortOrder(s string) (SortOrder, error) {
	for _, o := range SortOrders {
		if string(o) == s {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown sort order %q (supported: earliest_first, latest_first, alpha_az, alpha_za)", s)
}

// Preferences is the persisted display state.
type Preferences struct {
	Filter    Filter    `toml:"reminder_filter"`
	SortOrder SortOrder `toml:"reminder_sort_order"`
}

// Default is used when nothing has been saved yet.
func Default() Preferences {
	return Preferences{
		Filter:    FilterUpcoming,
		SortOrder: SortEarliestFirst,
	}
}

// normalize replaces unknown or missing values with defaults so a hand-edited
// file never breaks the list.
func (p Preferences) normalize() Preferences {
	d := Default()
	if _, err := ParseFilter(string(p.Filter)); err != nil {
		p.Filter = d.Filter
	}
	if _, err := ParseSortOrder(string(p.SortOrder)); err != nil {
		p.SortOrder = d.SortOrder
	}
	return p
}
