// Package memory is an in-process store.Store. It backs tests and the
// -memory mode of the CLI.
//
// Transactions are serialized and roll back by restoring a snapshot taken
// when the transaction began. Writes made outside a transaction while one is
// running may be lost on rollback.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
	"calrecur/internal/store"
)

type txKey struct{}

// Store keeps templates and events in maps keyed by id.
type Store struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	templates map[uuid.UUID]model.Template
	events    map[uuid.UUID]model.Event

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		templates: make(map[uuid.UUID]model.Template),
		events:    make(map[uuid.UUID]model.Event),
		now:       time.Now,
	}
}

// ExecTx runs fn atomically. Nested calls join the outer transaction.
func (s *Store) ExecTx(ctx context.Context, fn store.TxFn) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	templates := maps.Clone(s.templates)
	events := maps.Clone(s.events)
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.templates = templates
		s.events = events
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) CreateTemplate(_ context.Context, t *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, ok := s.templates[t.ID]; ok {
		return fmt.Errorf("template %s: %w", t.ID, model.ErrConflict)
	}
	now := s.now()
	t.Status = model.StatusActive
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	stored := *t
	stored.Events = nil
	s.templates[t.ID] = stored
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id uuid.UUID) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok || t.IsDeleted() {
		return nil, fmt.Errorf("template %s: %w", id, model.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) UpdateTemplate(_ context.Context, t *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.templates[t.ID]
	if !ok || current.IsDeleted() {
		return fmt.Errorf("template %s: %w", t.ID, model.ErrNotFound)
	}
	if current.Version != t.Version {
		return fmt.Errorf("template %s version %d: %w", t.ID, t.Version, model.ErrConflict)
	}
	t.Version++
	t.UpdatedAt = s.now()

	stored := *t
	stored.Events = nil
	s.templates[t.ID] = stored
	return nil
}

func (s *Store) SoftDeleteTemplate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok || t.IsDeleted() {
		return fmt.Errorf("template %s: %w", id, model.ErrNotFound)
	}
	now := s.now()
	t.Status = model.StatusDeleted
	t.DeletedAt = &now
	t.UpdatedAt = now
	t.Version++
	s.templates[id] = t
	return nil
}

func (s *Store) ListRecurringTemplates(_ context.Context, ref time.Time) ([]model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Template, 0)
	for _, t := range s.templates {
		if recurrence.GeneratesAt(t, ref) {
			out = append(out, t)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (s *Store) ListTemplatesActiveIn(_ context.Context, monthEnd time.Time) ([]model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Template, 0)
	for _, t := range s.templates {
		if !recurrence.ActiveInMonth(t, monthEnd) {
			continue
		}
		t.Events = s.eventsOf(t.ID)
		out = append(out, t)
	}
	sortTemplates(out)
	return out, nil
}

func (s *Store) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[e.TemplateID]; !ok {
		return fmt.Errorf("event template %s: %w", e.TemplateID, model.ErrNotFound)
	}
	// Mirrors the unique (template_id, start_datetime) index.
	for _, existing := range s.events {
		if existing.TemplateID == e.TemplateID && existing.Start.Equal(e.Start) {
			return fmt.Errorf("event at %s: %w", e.Start.Format(time.RFC3339), model.ErrConflict)
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := s.now()
	e.Status = model.StatusActive
	e.IsVirtual = false
	e.CreatedAt = now
	e.UpdatedAt = now
	s.events[e.ID] = *e
	return nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok || e.IsDeleted() {
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListEvents(_ context.Context, templateID uuid.UUID) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsOf(templateID), nil
}

func (s *Store) EventExistsAt(_ context.Context, templateID uuid.UUID, start time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.TemplateID == templateID && e.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SoftDeleteEvent(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok || e.IsDeleted() {
		return false, nil
	}
	s.events[id] = s.deleted(e)
	return true, nil
}

func (s *Store) SoftDeleteEventsAfter(_ context.Context, templateID uuid.UUID, after time.Time) (int, error) {
	return s.softDeleteWhere(func(e model.Event) bool {
		return e.TemplateID == templateID && e.Start.After(after)
	}), nil
}

func (s *Store) SoftDeleteEventsOf(_ context.Context, templateID uuid.UUID) (int, error) {
	return s.softDeleteWhere(func(e model.Event) bool {
		return e.TemplateID == templateID
	}), nil
}

func (s *Store) ListEventsByOwner(_ context.Context, owner model.OwnerID) ([]model.Event, error) {
	return s.eventsWhereTemplate(func(t model.Template) bool {
		return t.OwnerID != nil && *t.OwnerID == owner
	}), nil
}

func (s *Store) ListEventsByPlace(_ context.Context, place model.PlaceID) ([]model.Event, error) {
	return s.eventsWhereTemplate(func(t model.Template) bool {
		return t.PlaceID != nil && *t.PlaceID == place
	}), nil
}

func (s *Store) softDeleteWhere(match func(model.Event) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.events {
		if e.IsDeleted() || !match(e) {
			continue
		}
		s.events[id] = s.deleted(e)
		n++
	}
	return n
}

func (s *Store) eventsWhereTemplate(match func(model.Template) bool) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, e := range s.events {
		t, ok := s.templates[e.TemplateID]
		if e.IsDeleted() || !ok || t.IsDeleted() || !match(t) {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out
}

// eventsOf expects s.mu to be held.
func (s *Store) eventsOf(templateID uuid.UUID) []model.Event {
	out := make([]model.Event, 0)
	for _, e := range s.events {
		if e.TemplateID == templateID && !e.IsDeleted() {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

func (s *Store) deleted(e model.Event) model.Event {
	now := s.now()
	e.Status = model.StatusDeleted
	e.DeletedAt = &now
	e.UpdatedAt = now
	return e
}

func sortEvents(events []model.Event) {
	slices.SortFunc(events, func(a, b model.Event) int {
		return a.Start.Compare(b.Start)
	})
}

func sortTemplates(templates []model.Template) {
	slices.SortFunc(templates, func(a, b model.Template) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}
