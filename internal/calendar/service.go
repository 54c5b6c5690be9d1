// Package calendar materializes and projects the occurrences of recurring
// templates and applies edits and deletes to recurrence chains.
//
// Every multi-row mutation runs as one unit of work on the store's
// TransactionManager.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
	"calrecur/internal/store"
)

// Options configures a Service.
type Options struct {
	// Location is the calendar context for date arithmetic. Defaults to time.Local.
	Location *time.Location
	// LookaheadDays bounds how far ahead a generation pass materializes.
	LookaheadDays int
	// OnMaterialized, if set, is called after each generated event commits.
	OnMaterialized func(model.Event)
}

// Service is the recurrence engine.
type Service struct {
	store          store.Store
	loc            *time.Location
	lookaheadDays  int
	onMaterialized func(model.Event)
}

// NewService creates a Service on top of st.
func NewService(st store.Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = recurrence.DefaultLookaheadDays
	}
	return &Service{
		store:          st,
		loc:            opts.Location,
		lookaheadDays:  opts.LookaheadDays,
		onMaterialized: opts.OnMaterialized,
	}
}

// Location returns the calendar context of the service.
func (s *Service) Location() *time.Location {
	return s.loc
}

// GetTemplate returns an active template with its active events.
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", id, err)
	}
	t.Events = events
	s.localize(t)
	return t, nil
}

// GetEvent returns an active event.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.localizeEvent(e)
	return e, nil
}

// EventsByOwner lists the active events of templates owned by owner.
func (s *Service) EventsByOwner(ctx context.Context, owner model.OwnerID) ([]model.Event, error) {
	events, err := s.store.ListEventsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("events of owner %d: %w", owner, err)
	}
	return s.localizeEvents(events), nil
}

// EventsByPlace lists the active events of templates held at place.
func (s *Service) EventsByPlace(ctx context.Context, place model.PlaceID) ([]model.Event, error) {
	events, err := s.store.ListEventsByPlace(ctx, place)
	if err != nil {
		return nil, fmt.Errorf("events of place %d: %w", place, err)
	}
	return s.localizeEvents(events), nil
}

// inTx runs fn as one unit of work and returns what it produced.
func inTx[T any](ctx context.Context, tm store.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := tm.ExecTx(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// localize moves all instants of t into the service's calendar context so
// that day and month arithmetic happen in one place.
func (s *Service) localize(t *model.Template) {
	t.Start = t.Start.In(s.loc)
	t.End = t.End.In(s.loc)
	if t.EndOfRecurring != nil {
		end := t.EndOfRecurring.In(s.loc)
		t.EndOfRecurring = &end
	}
	for i := range t.Events {
		s.localizeEvent(&t.Events[i])
	}
}

func (s *Service) localizeEvent(e *model.Event) {
	e.Start = e.Start.In(s.loc)
	e.End = e.End.In(s.loc)
}

func (s *Service) localizeEvents(events []model.Event) []model.Event {
	for i := range events {
		s.localizeEvent(&events[i])
	}
	return events
}
