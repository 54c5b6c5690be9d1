package calendar

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
)

// Projector yields the virtual occurrences of one template inside a window,
// continuing after the template's latest materialized event (or from its
// anchor when it has none). It never touches storage.
type Projector struct {
	tmpl   model.Template
	window recurrence.Window
	start  time.Time
	from   time.Time
	done   bool
}

// NewProjector prepares a projection of t over w. t.Events must hold the
// template's materialized events ordered by start.
func NewProjector(t model.Template, w recurrence.Window) *Projector {
	start := t.Start
	if n := len(t.Events); n > 0 {
		start = t.Events[n-1].Start.Add(time.Nanosecond)
	}
	if start.Before(w.Start) {
		start = w.Start
	}
	return &Projector{tmpl: t, window: w, start: start, from: start}
}

// Next returns the next virtual occurrence, or false once the projection has
// left the window.
func (p *Projector) Next() (model.Event, bool) {
	if p.done {
		return model.Event{}, false
	}
	next, ok := recurrence.NextOccurrence(p.tmpl, p.from)
	if !ok || next.After(p.window.End) {
		p.done = true
		return model.Event{}, false
	}
	p.from = next.Add(time.Nanosecond)
	return model.NewVirtualEvent(p.tmpl, next), true
}

// Reset rewinds the projector to its first occurrence.
func (p *Projector) Reset() {
	p.from = p.start
	p.done = false
}

// Month is the calendar of one month: materialized events plus the virtual
// occurrences that would be generated, ordered by start.
type Month struct {
	Window    recurrence.Window
	Events    []model.Event
	Templates map[uuid.UUID]model.Template
}

// PotentialEventsOfMonth lists the events of the month containing date,
// including virtual occurrences that are not materialized yet.
func (s *Service) PotentialEventsOfMonth(ctx context.Context, date time.Time) (*Month, error) {
	window := recurrence.MonthWindow(date.In(s.loc))

	templates, err := s.store.ListTemplatesActiveIn(ctx, window.End)
	if err != nil {
		return nil, fmt.Errorf("list templates of %s: %w", window.Start.Format("2006-01"), err)
	}

	month := &Month{
		Window:    window,
		Events:    make([]model.Event, 0),
		Templates: make(map[uuid.UUID]model.Template, len(templates)),
	}

	for _, t := range templates {
		s.localize(&t)
		month.Templates[t.ID] = t

		for _, e := range t.Events {
			if window.Contains(e.Start) {
				month.Events = append(month.Events, e)
			}
		}

		p := NewProjector(t, window)
		for v, ok := p.Next(); ok; v, ok = p.Next() {
			exists, err := s.store.EventExistsAt(ctx, t.ID, v.Start)
			if err != nil {
				return nil, fmt.Errorf("check event of %s: %w", t.ID, err)
			}
			if !exists {
				month.Events = append(month.Events, v)
			}
		}
	}

	slices.SortStableFunc(month.Events, func(a, b model.Event) int {
		return a.Start.Compare(b.Start)
	})
	return month, nil
}
