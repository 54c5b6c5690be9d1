package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "calrecur/internal/log"
	"calrecur/internal/model"
	"calrecur/internal/recurrence"
)

// GenerateResult summarizes one generation pass.
type GenerateResult struct {
	Reference    time.Time
	Materialized int
	Skipped      int
	Failed       int
	Events       []model.Event
}

// Generate materializes at most one new occurrence per recurring template
// within the look-ahead window of ref. Each template runs in its own
// transaction; a failing template is logged and reported in the returned
// error without stopping the others.
func (s *Service) Generate(ctx context.Context, ref time.Time) (GenerateResult, error) {
	ref = ref.In(s.loc)
	res := GenerateResult{Reference: ref}

	templates, err := s.store.ListRecurringTemplates(ctx, ref)
	if err != nil {
		return res, fmt.Errorf("list recurring templates: %w", err)
	}

	var errs []error
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ev, err := s.Materialize(ctx, t, ref)
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, fmt.Errorf("template %s: %w", t.ID, err))
			appLog.Error("materialize failed", err, "template_id", t.ID)
		case ev == nil:
			res.Skipped++
		default:
			res.Materialized++
			res.Events = append(res.Events, *ev)
		}
	}

	appLog.Info("generation pass finished",
		"reference", ref,
		"templates", len(templates),
		"materialized", res.Materialized,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, errors.Join(errs...)
}

// Materialize stores the next occurrence of t if it is eligible at ref: it
// exists, falls inside the look-ahead window, is not past the end of the
// recurrence and no event (deleted ones included) already starts at that
// instant. An ineligible template returns (nil, nil).
func (s *Service) Materialize(ctx context.Context, t model.Template, ref time.Time) (*model.Event, error) {
	s.localize(&t)
	window := recurrence.LookaheadWindow(ref.In(s.loc), s.lookaheadDays)

	next, ok := recurrence.NextOccurrence(t, window.Start)
	if !ok || !recurrence.Accept(t, next, window) {
		return nil, nil
	}

	ev, err := inTx(ctx, s.store, func(ctx context.Context) (*model.Event, error) {
		exists, err := s.store.EventExistsAt(ctx, t.ID, next)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
		ev := &model.Event{
			TemplateID: t.ID,
			Start:      next,
			End:        next.Add(t.Duration()),
		}
		if err := s.store.CreateEvent(ctx, ev); err != nil {
			return nil, err
		}
		return ev, nil
	})
	if errors.Is(err, model.ErrConflict) {
		// Someone else materialized the same instant first.
		return nil, nil
	}
	if err != nil || ev == nil {
		return nil, err
	}

	appLog.Info("generated calendar event",
		"template_id", ev.TemplateID,
		"event_id", ev.ID,
		"start", ev.Start,
		"end", ev.End,
	)
	if s.onMaterialized != nil {
		s.onMaterialized(*ev)
	}
	return ev, nil
}
