package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
)

// ErrUnsupportedRule is returned for RRULEs that no template frequency can
// express, such as several BYDAY values or BYSETPOS.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// Attributes converts ev into the attributes of a new template.
func Attributes(ev ParsedEvent) (model.Attributes, error) {
	title := ev.Summary
	if title == "" {
		title = ev.UID
	}
	description := ev.Description
	if ev.Location != "" {
		if description != "" {
			description += "\n"
		}
		description += "Location: " + ev.Location
	}
	attrs := model.Attributes{
		Title:       &title,
		Description: &description,
		Start:       ptr(ev.Start),
		End:         ptr(ev.End),
		IsRecurring: ptr(false),
	}
	if ev.RawRRule == "" {
		return attrs, nil
	}

	freq, n, until, err := frequencyOf(ev.RawRRule, ev.Start)
	if err != nil {
		return model.Attributes{}, fmt.Errorf("rrule %q: %w", ev.RawRRule, err)
	}
	attrs.IsRecurring = ptr(true)
	attrs.FrequencyType = &freq
	attrs.FrequencyNumber = &n
	if !until.IsZero() {
		attrs.EndOfRecurring = &until
	}
	return attrs, nil
}

// frequencyOf maps an RRULE anchored at dtstart onto a frequency type and
// interval. A COUNT is turned into the start of the last occurrence.
func frequencyOf(raw string, dtstart time.Time) (model.FrequencyType, int, time.Time, error) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return "", 0, time.Time{}, err
	}
	if len(opt.Bysetpos) > 0 || len(opt.Bymonthday) > 1 || len(opt.Byweekday) > 1 || len(opt.Bymonth) > 1 {
		return "", 0, time.Time{}, ErrUnsupportedRule
	}

	var freq model.FrequencyType
	switch opt.Freq {
	case rrule.DAILY:
		freq = model.FrequencyDay
	case rrule.WEEKLY:
		if len(opt.Byweekday) == 1 && opt.Byweekday[0].Day() != weekdayIndex(dtstart) {
			return "", 0, time.Time{}, ErrUnsupportedRule
		}
		freq = model.FrequencyWeek
	case rrule.MONTHLY:
		freq = model.FrequencyMonth
		if len(opt.Byweekday) == 1 {
			wd := opt.Byweekday[0]
			if wd.Day() != weekdayIndex(dtstart) || wd.N() != recurrence.OrdinalInMonth(dtstart) {
				return "", 0, time.Time{}, ErrUnsupportedRule
			}
			freq = model.FrequencyNthWeekday
		}
	case rrule.YEARLY:
		freq = model.FrequencyYear
	default:
		return "", 0, time.Time{}, ErrUnsupportedRule
	}

	interval := max(opt.Interval, 1)

	until := opt.Until
	if opt.Count > 0 {
		opt.Dtstart = dtstart
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return "", 0, time.Time{}, err
		}
		if all := r.All(); len(all) > 0 {
			until = all[len(all)-1]
		}
	}
	return freq, interval, until, nil
}

// weekdayIndex converts to rrule's Monday-first numbering.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func ptr[T any](v T) *T { return &v }
