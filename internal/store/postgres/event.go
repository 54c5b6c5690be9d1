package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"calrecur/internal/model"
)

const eventColumns = `id, template_calendar_event_id, start_datetime, end_datetime,
	status, created_at, updated_at, deleted_at`

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := s.now()
	e.Status = model.StatusActive
	e.IsVirtual = false
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
		INSERT INTO calendar_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
	`
	_, err := executor(ctx, s.pool).Exec(ctx, query,
		e.ID, e.TemplateID, e.Start, e.End, string(e.Status), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateError(err) {
			return fmt.Errorf("event at %s: %w", e.Start.Format(time.RFC3339), model.ErrConflict)
		}
		if IsForeignKeyError(err) {
			return fmt.Errorf("event template %s: %w", e.TemplateID, model.ErrNotFound)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = $1 AND status = 'active'`

	e, err := scanEvent(executor(ctx, s.pool).QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRowsError(err) {
			return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context, templateID uuid.UUID) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE template_calendar_event_id = $1 AND status = 'active'
		ORDER BY start_datetime`
	return s.queryEvents(ctx, query, templateID)
}

func (s *Store) EventExistsAt(ctx context.Context, templateID uuid.UUID, start time.Time) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM calendar_events WHERE template_calendar_event_id = $1 AND start_datetime = $2
	)`
	var exists bool
	if err := executor(ctx, s.pool).QueryRow(ctx, query, templateID, start).Scan(&exists); err != nil {
		return false, fmt.Errorf("check event exists: %w", err)
	}
	return exists, nil
}

func (s *Store) SoftDeleteEvent(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.softDelete(ctx, `id = $1`, id)
	return n > 0, err
}

func (s *Store) SoftDeleteEventsAfter(ctx context.Context, templateID uuid.UUID, after time.Time) (int, error) {
	return s.softDelete(ctx, `template_calendar_event_id = $1 AND start_datetime > $2`, templateID, after)
}

func (s *Store) SoftDeleteEventsOf(ctx context.Context, templateID uuid.UUID) (int, error) {
	return s.softDelete(ctx, `template_calendar_event_id = $1`, templateID)
}

func (s *Store) ListEventsByOwner(ctx context.Context, owner model.OwnerID) ([]model.Event, error) {
	return s.eventsJoinedOn(ctx, "owner_id", int64(owner))
}

func (s *Store) ListEventsByPlace(ctx context.Context, place model.PlaceID) ([]model.Event, error) {
	return s.eventsJoinedOn(ctx, "place_id", int64(place))
}

// softDelete marks the active events matching where; the timestamp is
// always the last placeholder.
func (s *Store) softDelete(ctx context.Context, where string, args ...any) (int, error) {
	args = append(args, s.now())
	ts := fmt.Sprintf("$%d", len(args))
	query := `UPDATE calendar_events SET status = 'deleted', deleted_at = ` + ts + `, updated_at = ` + ts +
		` WHERE status = 'active' AND ` + where

	tag, err := executor(ctx, s.pool).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// eventsJoinedOn lists active events whose template has column = id.
// column is one of a fixed set of identifiers, never user input.
func (s *Store) eventsJoinedOn(ctx context.Context, column string, id int64) ([]model.Event, error) {
	query := fmt.Sprintf(`
		SELECT e.id, e.template_calendar_event_id, e.start_datetime, e.end_datetime,
			e.status, e.created_at, e.updated_at, e.deleted_at
		FROM calendar_events e
		JOIN template_calendar_events t ON t.id = e.template_calendar_event_id
		WHERE t.%s = $1 AND t.status = 'active' AND e.status = 'active'
		ORDER BY e.start_datetime
	`, column)
	return s.queryEvents(ctx, query, id)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := executor(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e      model.Event
		status string
	)
	err := row.Scan(&e.ID, &e.TemplateID, &e.Start, &e.End, &status, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	if err != nil {
		return nil, err
	}
	e.Status = model.Status(status)
	return &e, nil
}
