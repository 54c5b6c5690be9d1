package recurrence

import "time"

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped adds months to t keeping the time of day. When the target
// month is shorter than t's day of month, the day clamps to the month's last
// day (Jan 31 + 1 month = Feb 28/29) instead of overflowing like AddDate.
func AddMonthsClamped(t time.Time, months int) time.Time {
	first := firstOfMonth(t).AddDate(0, months, 0)
	day := t.Day()
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// WeekdaysInMonth lists every date of month that falls on weekday, at midnight.
func WeekdaysInMonth(year int, month time.Month, weekday time.Weekday, loc *time.Location) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7

	days := make([]time.Time, 0, 5)
	for d := 1 + offset; d <= DaysIn(year, month); d += 7 {
		days = append(days, time.Date(year, month, d, 0, 0, 0, 0, loc))
	}
	return days
}

// NthWeekdayOfMonth returns the ordinal-th weekday of month (1-based), or
// false when the month has fewer matching weekdays.
func NthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, ordinal int, loc *time.Location) (time.Time, bool) {
	if ordinal < 1 {
		return time.Time{}, false
	}
	days := WeekdaysInMonth(year, month, weekday, loc)
	if ordinal > len(days) {
		return time.Time{}, false
	}
	return days[ordinal-1], true
}

// OrdinalInMonth reports which occurrence of its weekday t is within its
// month: 1 for days 1-7, 2 for days 8-14, and so on.
func OrdinalInMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func atClockOf(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}

// monthsBetween counts whole calendar months from a to b, ignoring days.
func monthsBetween(a, b time.Time) int {
	b = b.In(a.Location())
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
