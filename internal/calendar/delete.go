package calendar

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"calrecur/internal/model"
)

// DeleteEvent deletes the occurrence eventID. For a recurring template the
// series is truncated at the occurrence and later materialized events are
// removed; deleting the first occurrence, or the only occurrence of a
// one-off template, removes the whole template. isRecurring overrides the
// template's own flag when set.
func (s *Service) DeleteEvent(ctx context.Context, eventID uuid.UUID, isRecurring *bool) (bool, error) {
	deleted, err := inTx(ctx, s.store, func(ctx context.Context) (bool, error) {
		ev, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return false, err
		}
		tmpl, err := s.store.GetTemplate(ctx, ev.TemplateID)
		if err != nil {
			return false, err
		}
		s.localizeEvent(ev)
		s.localize(tmpl)
		return s.terminate(ctx, ev, tmpl, isRecurring)
	})
	if err != nil {
		return false, fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return deleted, nil
}

// terminate must run inside a transaction.
func (s *Service) terminate(ctx context.Context, ev *model.Event, tmpl *model.Template, isRecurring *bool) (bool, error) {
	effective := tmpl.IsRecurring
	if isRecurring != nil {
		effective = *isRecurring
	}

	wholeTemplate := !tmpl.IsRecurring
	if tmpl.IsRecurring && effective {
		end := ev.Start
		tmpl.EndOfRecurring = &end
		if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
			return false, fmt.Errorf("truncate template %s: %w", tmpl.ID, err)
		}
		if _, err := s.store.SoftDeleteEventsAfter(ctx, tmpl.ID, ev.Start); err != nil {
			return false, err
		}
		// Nothing before the first occurrence is left to keep.
		if tmpl.Start.Equal(ev.Start) {
			wholeTemplate = true
		}
	}

	if wholeTemplate {
		if err := s.store.SoftDeleteTemplate(ctx, tmpl.ID); err != nil {
			return false, fmt.Errorf("delete template %s: %w", tmpl.ID, err)
		}
	}

	deleted, err := s.store.SoftDeleteEvent(ctx, ev.ID)
	if err != nil {
		return false, err
	}

	if wholeTemplate {
		if _, err := s.store.SoftDeleteEventsOf(ctx, tmpl.ID); err != nil {
			return false, err
		}
	}
	return deleted, nil
}
