// Package store declares the persistence ports used by the calendar service.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calrecur/internal/model"
)

// TxFn is a function that runs within a transaction.
type TxFn func(ctx context.Context) error

// TransactionManager runs a unit of work atomically. Repository calls made
// with the ctx passed to fn take part in the transaction.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

// TemplateRepository persists templates. Reads only return active templates
// unless stated otherwise.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *model.Template) error
	// GetTemplate returns model.ErrNotFound for unknown or deleted ids.
	GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error)
	// UpdateTemplate writes t if its Version still matches the stored one and
	// bumps t.Version; a stale version returns model.ErrConflict.
	UpdateTemplate(ctx context.Context, t *model.Template) error
	SoftDeleteTemplate(ctx context.Context, id uuid.UUID) error
	// ListRecurringTemplates returns recurring templates whose recurrence has
	// not ended before ref.
	ListRecurringTemplates(ctx context.Context, ref time.Time) ([]model.Template, error)
	// ListTemplatesActiveIn returns the templates with occurrences in the
	// month ending at monthEnd, with their active events loaded.
	ListTemplatesActiveIn(ctx context.Context, monthEnd time.Time) ([]model.Template, error)
}

// EventRepository persists materialized events.
type EventRepository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	// GetEvent returns model.ErrNotFound for unknown or deleted ids.
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
	// ListEvents returns the active events of a template ordered by start.
	ListEvents(ctx context.Context, templateID uuid.UUID) ([]model.Event, error)
	// EventExistsAt also counts soft-deleted events.
	EventExistsAt(ctx context.Context, templateID uuid.UUID, start time.Time) (bool, error)
	// SoftDeleteEvent reports whether an active event was deleted.
	SoftDeleteEvent(ctx context.Context, id uuid.UUID) (bool, error)
	// SoftDeleteEventsAfter deletes the template's events starting strictly after after.
	SoftDeleteEventsAfter(ctx context.Context, templateID uuid.UUID, after time.Time) (int, error)
	SoftDeleteEventsOf(ctx context.Context, templateID uuid.UUID) (int, error)
	ListEventsByOwner(ctx context.Context, owner model.OwnerID) ([]model.Event, error)
	ListEventsByPlace(ctx context.Context, place model.PlaceID) ([]model.Event, error)
}

// Store is everything the calendar service needs from persistence.
type Store interface {
	TransactionManager
	TemplateRepository
	EventRepository
}
