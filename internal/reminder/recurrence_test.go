package reminder

import (
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// bruteNext walks the grid one step at a time.
func bruteNext(start time.Time, ri RepeatInterval, now time.Time) time.Time {
	d := ri.Duration()
	next := start.Add(d)
	for !next.After(now) {
		next = next.Add(d)
	}
	return next
}

var _ = Describe("NextOccurrence", func() {
	weekly := RepeatInterval{Amount: 1, Unit: UnitWeek}
	daily := RepeatInterval{Amount: 1, Unit: UnitDay}
	ri24h := 24 * time.Hour

	It("skips missed weekly occurrences to the next grid point", func() {
		start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
		now := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)

		Expect(NextOccurrence(start, weekly, now)).To(Equal(time.Date(2024, 1, 29, 8, 0, 0, 0, time.UTC)))
	})

	It("moves a future start one interval ahead", func() {
		start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
		now := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)

		Expect(NextOccurrence(start, daily, now)).To(Equal(start.Add(24 * time.Hour)))
	})

	It("treats now exactly on the grid as already passed", func() {
		start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
		now := start.Add(3 * 24 * time.Hour)

		Expect(NextOccurrence(start, daily, now)).To(Equal(start.Add(4 * 24 * time.Hour)))
	})

	It("advances when start equals now", func() {
		start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

		Expect(NextOccurrence(start, daily, start)).To(Equal(start.Add(24 * time.Hour)))
	})

	It("uses fixed-length days across a DST change", func() {
		loc, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			Skip("tzdata not available")
		}
		start := time.Date(2024, 3, 30, 9, 0, 0, 0, loc)
		now := time.Date(2024, 3, 31, 12, 0, 0, 0, loc)

		next := NextOccurrence(start, daily, now)
		Expect(next.Sub(start)).To(Equal(48 * time.Hour))
		Expect(next.Hour()).To(Equal(10), "wall clock shifts by the DST offset")
	})

	It("catches up after years of missed daily occurrences", func() {
		start := time.Date(2014, 5, 3, 7, 15, 0, 0, time.UTC)
		now := time.Date(2024, 5, 3, 12, 0, 0, 500, time.UTC)

		next := NextOccurrence(start, daily, now)
		Expect(next).To(Equal(time.Date(2024, 5, 4, 7, 15, 0, 0, time.UTC)))
		Expect(next).To(Equal(bruteNext(start, daily, now)))
		Expect(next.Sub(start) / ri24h).To(BeNumerically(">", 3650))
	})

	It("keeps sub-second starts on their grid", func() {
		start := time.Date(2024, 1, 1, 8, 0, 0, 900_000_000, time.UTC)
		now := time.Date(2024, 1, 3, 8, 0, 0, 100_000_000, time.UTC)

		Expect(NextOccurrence(start, daily, now)).To(Equal(time.Date(2024, 1, 3, 8, 0, 0, 900_000_000, time.UTC)))
	})

	It("stays in the future for the largest intervals", func() {
		longest := RepeatInterval{Amount: MaxRepeatAmount, Unit: UnitWeek}
		start := time.Date(1990, 1, 1, 8, 0, 0, 0, time.UTC)
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		next := NextOccurrence(start, longest, now)
		Expect(next.After(now)).To(BeTrue())
		Expect(next).To(Equal(start.Add(2 * longest.Duration())))

		// amounts past the validation bound still must not wrap around
		huge := RepeatInterval{Amount: 20000, Unit: UnitWeek}
		future := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
		Expect(NextOccurrence(future, huge, now).After(future)).To(BeTrue())
		Expect(NextOccurrence(start, huge, now).After(now)).To(BeTrue())
	})

	It("agrees with stepping through the grid", func() {
		rng := rand.New(rand.NewSource(42))
		base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

		for i := 0; i < 500; i++ {
			ri := RepeatInterval{Amount: 1 + rng.Intn(5), Unit: UnitDay}
			if rng.Intn(2) == 0 {
				ri.Unit = UnitWeek
			}
			start := base.Add(time.Duration(rng.Int63n(int64(400 * 24 * time.Hour))))
			now := base.Add(time.Duration(rng.Int63n(int64(400 * 24 * time.Hour))))

			next := NextOccurrence(start, ri, now)

			Expect(next.After(now)).To(BeTrue())
			Expect(next.After(start)).To(BeTrue())
			Expect(next.Sub(start) % ri.Duration()).To(BeZero())
			Expect(next).To(Equal(bruteNext(start, ri, now)), "start=%s now=%s interval=%s", start, now, ri)
		}
	})
})
