package reminder

import "time"

// NextOccurrence returns the first instant on start's recurrence grid that is
// strictly after now. When start itself is still in the future (an occurrence
// completed early) the result is the following grid point.
//
// The interval must have a positive amount and a known unit; callers guard
// one-time reminders before getting here. Runs in constant time no matter
// how many occurrences were missed.
//
// Units are whole seconds long, so the grid is computed on Unix seconds. That
// keeps large gaps and large amounts clear of time.Duration's range.
func NextOccurrence(start time.Time, interval RepeatInterval, now time.Time) time.Time {
	step := int64(interval.Amount) * int64(interval.Unit.Duration()/time.Second)
	base := start.Unix()

	if start.After(now) {
		return time.Unix(base+step, int64(start.Nanosecond())).In(start.Location())
	}

	// Whole seconds elapsed, with the sub-second remainder moved into
	// [0, 1s). A grid step is a whole number of seconds, so the remainder
	// cannot change which step now falls in.
	elapsed := now.Unix() - base
	if now.Nanosecond() < start.Nanosecond() {
		elapsed--
	}
	k := elapsed / step
	return time.Unix(base+(k+1)*step, int64(start.Nanosecond())).In(start.Location())
}
