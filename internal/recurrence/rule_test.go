package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calrecur/internal/model"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

func template(freq model.FrequencyType, start time.Time, n *int) model.Template {
	return model.Template{
		Start:           start,
		End:             start.Add(time.Hour),
		IsRecurring:     true,
		FrequencyType:   freq,
		FrequencyNumber: n,
		Status:          model.StatusActive,
	}
}

// series collects count consecutive occurrences starting at the anchor.
func series(t *testing.T, rule Rule, anchor time.Time, count int) []time.Time {
	t.Helper()
	out := make([]time.Time, 0, count)
	from := anchor
	for len(out) < count {
		next, ok := rule.Next(anchor, from)
		require.True(t, ok, "series ended after %d occurrences", len(out))
		out = append(out, next)
		from = next.Add(time.Nanosecond)
	}
	return out
}

func TestNext(t *testing.T) {
	tests := []struct {
		name   string
		rule   Rule
		anchor time.Time
		from   time.Time
		want   time.Time
	}{
		{"day before anchor", Day{Interval: 3}, date(2024, 1, 1, 9, 0), date(2023, 12, 1, 0, 0), date(2024, 1, 1, 9, 0)},
		{"day lands on multiple", Day{Interval: 3}, date(2024, 1, 1, 9, 0), date(2024, 1, 5, 0, 0), date(2024, 1, 7, 9, 0)},
		{"day exact hit", Day{Interval: 3}, date(2024, 1, 1, 9, 0), date(2024, 1, 4, 9, 0), date(2024, 1, 4, 9, 0)},
		{"day pins clock", Day{Interval: 1}, date(2024, 1, 1, 9, 0), date(2024, 1, 4, 10, 0), date(2024, 1, 5, 9, 0)},
		{"week same day", Week{Interval: 1}, date(2024, 1, 1, 0, 0), date(2024, 1, 8, 0, 0), date(2024, 1, 8, 0, 0)},
		{"week after", Week{Interval: 1}, date(2024, 1, 1, 0, 0), date(2024, 1, 8, 0, 1), date(2024, 1, 15, 0, 0)},
		{"biweekly", Week{Interval: 2}, date(2024, 1, 1, 0, 0), date(2024, 1, 2, 0, 0), date(2024, 1, 15, 0, 0)},
		{"month clamps leap february", Month{Interval: 1}, date(2024, 1, 31, 8, 0), date(2024, 2, 1, 0, 0), date(2024, 2, 29, 8, 0)},
		{"month clamps february", Month{Interval: 1}, date(2023, 1, 31, 8, 0), date(2023, 2, 1, 0, 0), date(2023, 2, 28, 8, 0)},
		{"month returns to 31", Month{Interval: 1}, date(2024, 1, 31, 8, 0), date(2024, 3, 1, 0, 0), date(2024, 3, 31, 8, 0)},
		{"month clamps april", Month{Interval: 1}, date(2024, 1, 31, 8, 0), date(2024, 4, 1, 0, 0), date(2024, 4, 30, 8, 0)},
		{"quarterly", Month{Interval: 3}, date(2024, 1, 15, 8, 0), date(2024, 2, 1, 0, 0), date(2024, 4, 15, 8, 0)},
		{"year", Year{Interval: 1}, date(2020, 6, 1, 12, 0), date(2024, 1, 1, 0, 0), date(2024, 6, 1, 12, 0)},
		{"year leap day clamps", Year{Interval: 1}, date(2024, 2, 29, 12, 0), date(2024, 3, 1, 0, 0), date(2025, 2, 28, 12, 0)},
		{"year leap day returns", Year{Interval: 1}, date(2024, 2, 29, 12, 0), date(2028, 1, 1, 0, 0), date(2028, 2, 29, 12, 0)},
		{"second tuesday", NthWeekday{Interval: 1}, date(2024, 1, 9, 18, 0), date(2024, 2, 1, 0, 0), date(2024, 2, 13, 18, 0)},
		{"second tuesday next month", NthWeekday{Interval: 1}, date(2024, 1, 9, 18, 0), date(2024, 2, 14, 0, 0), date(2024, 3, 12, 18, 0)},
		{"fifth tuesday skips short months", NthWeekday{Interval: 1}, date(2024, 1, 30, 18, 0), date(2024, 2, 1, 0, 0), date(2024, 4, 30, 18, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.Next(tt.anchor, tt.from)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayGapEqualsInterval(t *testing.T) {
	for _, n := range []int{1, 2, 5, 13} {
		anchor := date(2024, 2, 27, 7, 30)
		occ := series(t, Day{Interval: n}, anchor, 20)
		for i := 1; i < len(occ); i++ {
			assert.Equal(t, n, int(occ[i].Sub(occ[i-1]).Hours()/24), "interval %d", n)
		}
	}
}

func TestWeekGapIsSevenDays(t *testing.T) {
	occ := series(t, Week{Interval: 1}, date(2024, 1, 1, 0, 0), 60)
	for i := 1; i < len(occ); i++ {
		assert.Equal(t, 7*24*time.Hour, occ[i].Sub(occ[i-1]))
	}
}

func TestMonthKeepsDayOfMonth(t *testing.T) {
	anchor := date(2024, 1, 31, 10, 0)
	for _, occ := range series(t, Month{Interval: 1}, anchor, 24) {
		want := min(31, DaysIn(occ.Year(), occ.Month()))
		assert.Equal(t, want, occ.Day(), occ.String())
		assert.Equal(t, 10, occ.Hour())
	}
}

func TestYearKeepsMonthAndDay(t *testing.T) {
	occ := series(t, Year{Interval: 1}, date(2021, 7, 4, 9, 0), 10)
	for i, o := range occ {
		assert.Equal(t, 2021+i, o.Year())
		assert.Equal(t, time.July, o.Month())
		assert.Equal(t, 4, o.Day())
	}
}

func TestNthWeekdayFallsOnOrdinal(t *testing.T) {
	anchor := date(2024, 1, 17, 19, 0) // third Wednesday
	for _, occ := range series(t, NthWeekday{Interval: 1}, anchor, 24) {
		assert.Equal(t, time.Wednesday, occ.Weekday())
		assert.Equal(t, 3, OrdinalInMonth(occ))
		assert.Equal(t, 19, occ.Hour())
	}
}

func TestNthWeekdayOfMonth(t *testing.T) {
	got, ok := NthWeekdayOfMonth(2024, time.February, time.Thursday, 5, time.UTC)
	require.True(t, ok)
	assert.Equal(t, date(2024, 2, 29, 0, 0), got)

	_, ok = NthWeekdayOfMonth(2024, time.February, time.Friday, 5, time.UTC)
	assert.False(t, ok)

	_, ok = NthWeekdayOfMonth(2024, time.February, time.Friday, 0, time.UTC)
	assert.False(t, ok)

	assert.Len(t, WeekdaysInMonth(2024, time.February, time.Tuesday, time.UTC), 4)
}

func TestAddMonthsClamped(t *testing.T) {
	assert.Equal(t, date(2024, 2, 29, 0, 0), AddMonthsClamped(date(2024, 1, 31, 0, 0), 1))
	assert.Equal(t, date(2023, 11, 30, 0, 0), AddMonthsClamped(date(2024, 1, 31, 0, 0), -2))
	assert.Equal(t, date(2025, 1, 31, 0, 0), AddMonthsClamped(date(2024, 1, 31, 0, 0), 12))
}

func TestNextOccurrence(t *testing.T) {
	tmpl := template(model.FrequencyWeek, date(2024, 1, 1, 0, 0), nil)

	next, ok := NextOccurrence(tmpl, date(2024, 1, 3, 0, 0))
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 8, 0, 0), next)

	end := date(2024, 1, 10, 0, 0)
	tmpl.EndOfRecurring = &end
	_, ok = NextOccurrence(tmpl, date(2024, 1, 9, 0, 0))
	assert.False(t, ok, "occurrence after end_of_recurring")

	oneOff := tmpl
	oneOff.IsRecurring = false
	_, ok = NextOccurrence(oneOff, date(2023, 1, 1, 0, 0))
	assert.False(t, ok)

	daily := template(model.FrequencyDay, date(2024, 1, 1, 9, 0), intPtr(2))
	next, ok = NextOccurrence(daily, date(2024, 1, 2, 0, 0))
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 3, 9, 0), next)
}

func TestFixedPeriodKeepsFractionOfSecond(t *testing.T) {
	anchor := time.Date(2024, 1, 3, 23, 59, 59, 500000000, time.UTC)

	got := series(t, Week{}, anchor, 3)
	assert.Equal(t, []time.Time{
		anchor,
		anchor.AddDate(0, 0, 7),
		anchor.AddDate(0, 0, 14),
	}, got)

	next, ok := Day{Interval: 1}.Next(anchor, anchor.Add(time.Nanosecond))
	require.True(t, ok)
	assert.Equal(t, anchor.AddDate(0, 0, 1), next)
}

func TestRuleForUnknown(t *testing.T) {
	_, err := RuleFor(template("hourly", date(2024, 1, 1, 0, 0), nil))
	assert.Error(t, err)
}
