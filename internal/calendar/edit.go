package calendar

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"calrecur/internal/model"
)

// CreateEvent stores a new template built from attrs together with its first
// event.
func (s *Service) CreateEvent(ctx context.Context, attrs model.Attributes, owner *model.OwnerID, place *model.PlaceID) (*model.Event, error) {
	var t model.Template
	attrs.ApplyTo(&t)
	t.OwnerID = owner
	t.PlaceID = place
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s.localize(&t)

	ev, err := inTx(ctx, s.store, func(ctx context.Context) (*model.Event, error) {
		return s.createWithTemplate(ctx, &t)
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

// EditEvent applies attrs to the occurrence eventID. When nothing differs it
// returns (nil, nil). Otherwise the chain forks: a new template starting at
// the edited occurrence takes over, the old template is closed at the
// occurrence (when both recur) and the occurrence itself is deleted.
//
// A nil owner or place keeps the template's current identity.
func (s *Service) EditEvent(ctx context.Context, eventID uuid.UUID, attrs model.Attributes, owner *model.OwnerID, place *model.PlaceID) (*model.Event, error) {
	ev, err := inTx(ctx, s.store, func(ctx context.Context) (*model.Event, error) {
		current, err := s.store.GetEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		tmpl, err := s.store.GetTemplate(ctx, current.TemplateID)
		if err != nil {
			return nil, err
		}
		s.localizeEvent(current)
		s.localize(tmpl)

		if !changed(*current, *tmpl, attrs, owner, place) {
			return nil, nil
		}
		return s.fork(ctx, current, tmpl, attrs, owner, place)
	})
	if err != nil {
		return nil, fmt.Errorf("edit event %s: %w", eventID, err)
	}
	return ev, nil
}

// changed compares the start date against the event and everything else
// against the template, which holds the defaults of the whole series.
func changed(ev model.Event, t model.Template, attrs model.Attributes, owner *model.OwnerID, place *model.PlaceID) bool {
	if attrs.Start != nil && !model.SameDate(ev.Start, *attrs.Start) {
		return true
	}
	if attrs.DiffersFromTemplate(t) {
		return true
	}
	if owner != nil && (t.OwnerID == nil || *owner != *t.OwnerID) {
		return true
	}
	if place != nil && (t.PlaceID == nil || *place != *t.PlaceID) {
		return true
	}
	return false
}

func (s *Service) fork(ctx context.Context, ev *model.Event, old *model.Template, attrs model.Attributes, owner *model.OwnerID, place *model.PlaceID) (*model.Event, error) {
	next := *old
	next.ID = uuid.Nil
	next.ParentID = &old.ID
	next.Events = nil
	next.DeletedAt = nil
	next.Start = ev.Start
	next.End = ev.End
	attrs.ApplyTo(&next)
	if attrs.Start != nil && attrs.End == nil {
		next.End = next.Start.Add(ev.End.Sub(ev.Start))
	}
	if owner != nil {
		next.OwnerID = owner
	}
	if place != nil {
		next.PlaceID = place
	}

	bothRecurring := old.IsRecurring && next.IsRecurring
	if !bothRecurring {
		next.EndOfRecurring = nil
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.localize(&next)

	created, err := s.createWithTemplate(ctx, &next)
	if err != nil {
		return nil, err
	}

	// With both recurring, terminate closes the old chain at the occurrence.
	if _, err := s.terminate(ctx, ev, old, &bothRecurring); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) createWithTemplate(ctx context.Context, t *model.Template) (*model.Event, error) {
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	ev := &model.Event{
		TemplateID: t.ID,
		Start:      t.Start,
		End:        t.End,
	}
	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
