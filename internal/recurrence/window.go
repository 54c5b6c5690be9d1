package recurrence

import (
	"time"

	"calrecur/internal/model"
)

// DefaultLookaheadDays is how far ahead the generation job materializes.
const DefaultLookaheadDays = 7

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// LookaheadWindow is [ref, ref + days]. Non-positive days use the default.
func LookaheadWindow(ref time.Time, days int) Window {
	if days <= 0 {
		days = DefaultLookaheadDays
	}
	return Window{Start: ref, End: ref.AddDate(0, 0, days)}
}

// MonthWindow spans the month of date, from its first instant to its last.
func MonthWindow(date time.Time) Window {
	start := firstOfMonth(date)
	return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// Accept reports whether candidate may be materialized for t within w.
// The duplicate check needs storage and is done by the caller.
func Accept(t model.Template, candidate time.Time, w Window) bool {
	return w.Contains(candidate) && !t.EndsBefore(candidate)
}

// ActiveInMonth reports whether t has occurrences to show in the month that
// ends at monthEnd:
//
//   - a one-off template starting in that month
//   - a recurring template started by monthEnd that never ends
//   - a recurring template started by monthEnd that ends at or after monthEnd
//   - a recurring template started by monthEnd whose recurrence ends within
//     that month
func ActiveInMonth(t model.Template, monthEnd time.Time) bool {
	if t.IsDeleted() {
		return false
	}
	if !t.IsRecurring {
		return sameMonth(t.Start, monthEnd)
	}
	if t.Start.After(monthEnd) {
		return false
	}
	switch {
	case t.EndOfRecurring == nil:
		return true
	case !t.EndOfRecurring.Before(monthEnd):
		return true
	default:
		return sameMonth(*t.EndOfRecurring, monthEnd)
	}
}

// GeneratesAt reports whether t takes part in a generation pass at ref.
func GeneratesAt(t model.Template, ref time.Time) bool {
	if t.IsDeleted() || !t.IsRecurring {
		return false
	}
	return t.EndOfRecurring == nil || !t.EndOfRecurring.Before(ref)
}

func sameMonth(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.Month() == b.Month()
}
