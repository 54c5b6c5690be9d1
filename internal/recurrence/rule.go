// Package recurrence computes occurrence dates of recurring templates.
//
// Every frequency kind is a Rule. A Rule only knows the series it describes:
// the anchor (the template's first start) and the instants that follow it.
// Window and end-of-recurring checks live in window.go so that the
// generation job and the month projector share one definition.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calrecur/internal/model"
)

// maxSearchSteps bounds the month-based searches. NthWeekday with ordinal 5
// and a large interval may never find a month with a fifth weekday.
const maxSearchSteps = 1200

// Rule yields the occurrences of one frequency kind.
type Rule interface {
	// Next returns the earliest occurrence of the series anchored at anchor
	// that is not before from. ok is false when no such occurrence exists.
	Next(anchor, from time.Time) (next time.Time, ok bool)
}

// Day repeats every Interval days at the anchor's time of day.
type Day struct{ Interval int }

// Week repeats every Interval weeks on the anchor's weekday.
type Week struct{ Interval int }

// Month repeats every Interval months on the anchor's day of month, clamped
// to the last day of shorter months.
type Month struct{ Interval int }

// Year repeats every Interval years; Feb 29 clamps to Feb 28.
type Year struct{ Interval int }

// NthWeekday repeats on the same ordinal weekday of every Interval months,
// e.g. "the second Tuesday". Months without that ordinal are skipped.
type NthWeekday struct{ Interval int }

// RuleFor selects the Rule of a recurring template.
func RuleFor(t model.Template) (Rule, error) {
	n := t.Interval()
	switch t.FrequencyType {
	case model.FrequencyDay:
		return Day{Interval: n}, nil
	case model.FrequencyWeek:
		return Week{Interval: n}, nil
	case model.FrequencyMonth:
		return Month{Interval: n}, nil
	case model.FrequencyYear:
		return Year{Interval: n}, nil
	case model.FrequencyNthWeekday:
		return NthWeekday{Interval: n}, nil
	default:
		return nil, fmt.Errorf("unsupported frequency type %q", t.FrequencyType)
	}
}

// NextOccurrence returns the first occurrence of t at or after from that is
// still inside the template's recurrence. Non-recurring templates have no
// next occurrence.
func NextOccurrence(t model.Template, from time.Time) (time.Time, bool) {
	if !t.Recurs() {
		return time.Time{}, false
	}
	rule, err := RuleFor(t)
	if err != nil {
		return time.Time{}, false
	}
	next, ok := rule.Next(t.Start, from)
	if !ok || t.EndsBefore(next) {
		return time.Time{}, false
	}
	return next, true
}

func (r Day) Next(anchor, from time.Time) (time.Time, bool) {
	return rruleNext(rrule.DAILY, r.Interval, anchor, from)
}

func (r Week) Next(anchor, from time.Time) (time.Time, bool) {
	return rruleNext(rrule.WEEKLY, r.Interval, anchor, from)
}

func (r Month) Next(anchor, from time.Time) (time.Time, bool) {
	return stepMonths(anchor, from, interval(r.Interval), func(k int) (time.Time, bool) {
		return AddMonthsClamped(anchor, k), true
	})
}

func (r Year) Next(anchor, from time.Time) (time.Time, bool) {
	return stepMonths(anchor, from, 12*interval(r.Interval), func(k int) (time.Time, bool) {
		return AddMonthsClamped(anchor, k), true
	})
}

func (r NthWeekday) Next(anchor, from time.Time) (time.Time, bool) {
	ordinal := OrdinalInMonth(anchor)
	return stepMonths(anchor, from, interval(r.Interval), func(k int) (time.Time, bool) {
		month := firstOfMonth(anchor).AddDate(0, k, 0)
		day, ok := NthWeekdayOfMonth(month.Year(), month.Month(), anchor.Weekday(), ordinal, anchor.Location())
		if !ok {
			return time.Time{}, false
		}
		return atClockOf(day, anchor), true
	})
}

// rruleNext expands simple fixed-period rules with rrule-go, which keeps the
// anchor's wall clock across DST changes. rrule-go works in whole seconds, so
// the anchor's fraction of a second is added back to each occurrence.
func rruleNext(freq rrule.Frequency, n int, anchor, from time.Time) (time.Time, bool) {
	if !from.After(anchor) {
		return anchor, true
	}
	frac := anchor.Sub(anchor.Truncate(time.Second))
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     freq,
		Interval: interval(n),
		Dtstart:  anchor,
	})
	if err != nil {
		return time.Time{}, false
	}
	next := r.After(from.Add(-frac), true)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.Add(frac), true
}

// stepMonths walks month offsets k = 0, step, 2*step, ... starting near from,
// and returns the first candidate that is not before from.
func stepMonths(anchor, from time.Time, step int, at func(k int) (time.Time, bool)) (time.Time, bool) {
	k := 0
	if from.After(anchor) {
		// Start one step early: clamping can move a candidate before from.
		k = (monthsBetween(anchor, from)/step - 1) * step
		if k < 0 {
			k = 0
		}
	}
	for i := 0; i < maxSearchSteps; i, k = i+1, k+step {
		cand, ok := at(k)
		if !ok || cand.Before(anchor) || cand.Before(from) {
			continue
		}
		return cand, true
	}
	return time.Time{}, false
}

func interval(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
