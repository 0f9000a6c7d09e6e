// Package billingcycle computes due dates for subscriptions anchored to a
// billing day. All functions are pure and work on UTC calendar days.
package billingcycle

import "time"

const (
	MinBillingDay = 1
	MaxBillingDay = 31
)

// NextDueDate returns the first date on or after reference that falls on the
// billing day. A billing day past the end of a month lands on that month's
// last day, so 31 means "last day of the month".
func NextDueDate(reference time.Time, billingDay int) time.Time {
	ref := StartOfDay(reference)
	candidate := DueDateInMonth(ref.Year(), ref.Month(), billingDay)
	if candidate.Before(ref) {
		next := AddMonths(PeriodStart(ref), 1)
		candidate = DueDateInMonth(next.Year(), next.Month(), billingDay)
	}
	return candidate
}

// DueDateInMonth anchors billingDay inside the given month, clamping to the
// month's length.
func DueDateInMonth(year int, month time.Month, billingDay int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	day := clampBillingDay(billingDay)
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in month.
func DaysIn(year int, month time.Month) int {
	// day 0 of the following month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves t by months keeping the day-of-month when it exists and
// falling back to the last day otherwise (Jan 31 + 1 = Feb 28/29).
func AddMonths(t time.Time, months int) time.Time {
	t = t.UTC()
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// PeriodStart returns the first day of t's month.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the first day of the month following t's month.
func PeriodEnd(t time.Time) time.Time {
	return AddMonths(PeriodStart(t), 1)
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func SameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// ValidBillingDay reports whether day is an accepted billing anchor.
func ValidBillingDay(day int) bool {
	return day >= MinBillingDay && day <= MaxBillingDay
}

func clampBillingDay(day int) int {
	if day < MinBillingDay {
		return MinBillingDay
	}
	if day > MaxBillingDay {
		return MaxBillingDay
	}
	return day
}
