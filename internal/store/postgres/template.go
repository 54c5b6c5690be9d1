package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
	"calrecur/internal/store"
)

const templateColumns = `id, parent_id, title, description, start_datetime, end_datetime,
	is_recurring, end_of_recurring, frequency_number, frequency_type, is_public,
	owner_id, place_id, status, version, created_at, updated_at, deleted_at`

// Store implements store.Store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) CreateTemplate(ctx context.Context, t *model.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.now()
	t.Status = model.StatusActive
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO template_calendar_events (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, NULL)
	`
	_, err := executor(ctx, s.pool).Exec(ctx, query,
		t.ID, t.ParentID, t.Title, t.Description, t.Start, t.End,
		t.IsRecurring, t.EndOfRecurring, t.FrequencyNumber, string(t.FrequencyType), t.IsPublic,
		t.OwnerID, t.PlaceID, string(t.Status), t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateError(err) {
			return fmt.Errorf("template %s: %w", t.ID, model.ErrConflict)
		}
		if IsForeignKeyError(err) {
			return fmt.Errorf("template parent %v: %w", t.ParentID, model.ErrNotFound)
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM template_calendar_events WHERE id = $1 AND status = 'active'`

	t, err := scanTemplate(executor(ctx, s.pool).QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRowsError(err) {
			return nil, fmt.Errorf("template %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t *model.Template) error {
	now := s.now()
	query := `
		UPDATE template_calendar_events
		SET parent_id = $3, title = $4, description = $5, start_datetime = $6, end_datetime = $7,
			is_recurring = $8, end_of_recurring = $9, frequency_number = $10,
			frequency_type = NULLIF($11, ''), is_public = $12, owner_id = $13, place_id = $14,
			version = version + 1, updated_at = $15
		WHERE id = $1 AND version = $2 AND status = 'active'
	`
	tag, err := executor(ctx, s.pool).Exec(ctx, query,
		t.ID, t.Version, t.ParentID, t.Title, t.Description, t.Start, t.End,
		t.IsRecurring, t.EndOfRecurring, t.FrequencyNumber,
		string(t.FrequencyType), t.IsPublic, t.OwnerID, t.PlaceID, now,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either gone or someone else bumped the version first.
		if _, err := s.GetTemplate(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("template %s version %d: %w", t.ID, t.Version, model.ErrConflict)
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func (s *Store) SoftDeleteTemplate(ctx context.Context, id uuid.UUID) error {
	now := s.now()
	query := `
		UPDATE template_calendar_events
		SET status = 'deleted', deleted_at = $2, updated_at = $2, version = version + 1
		WHERE id = $1 AND status = 'active'
	`
	tag, err := executor(ctx, s.pool).Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRecurringTemplates(ctx context.Context, ref time.Time) ([]model.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM template_calendar_events
		WHERE status = 'active'
			AND is_recurring = TRUE
			AND (end_of_recurring IS NULL OR end_of_recurring >= $1)
		ORDER BY start_datetime, id
	`
	return s.queryTemplates(ctx, query, ref)
}

func (s *Store) ListTemplatesActiveIn(ctx context.Context, monthEnd time.Time) ([]model.Template, error) {
	monthStart := recurrence.MonthWindow(monthEnd).Start
	query := `
		SELECT ` + templateColumns + `
		FROM template_calendar_events
		WHERE status = 'active' AND (
			(is_recurring = FALSE AND start_datetime >= $1 AND start_datetime <= $2)
			OR (is_recurring = TRUE AND start_datetime <= $2 AND (
				end_of_recurring IS NULL
				OR end_of_recurring >= $2
				OR end_of_recurring BETWEEN $1 AND $2
			))
		)
		ORDER BY start_datetime, id
	`
	templates, err := s.queryTemplates(ctx, query, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]model.Template, error) {
	rows, err := executor(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := make([]model.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// loadEvents eager-loads the active events of templates with one query.
func (s *Store) loadEvents(ctx context.Context, templates []model.Template) error {
	if len(templates) == 0 {
		return nil
	}
	ids := make([]string, len(templates))
	index := make(map[uuid.UUID]int, len(templates))
	for i, t := range templates {
		ids[i] = t.ID.String()
		index[t.ID] = i
	}

	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE template_calendar_event_id = ANY($1::text[]::uuid[]) AND status = 'active'
		ORDER BY start_datetime`
	events, err := s.queryEvents(ctx, query, ids)
	if err != nil {
		return err
	}
	for _, e := range events {
		i := index[e.TemplateID]
		templates[i].Events = append(templates[i].Events, e)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*model.Template, error) {
	var (
		t             model.Template
		frequencyType *string
		status        string
	)
	err := row.Scan(
		&t.ID, &t.ParentID, &t.Title, &t.Description, &t.Start, &t.End,
		&t.IsRecurring, &t.EndOfRecurring, &t.FrequencyNumber, &frequencyType, &t.IsPublic,
		&t.OwnerID, &t.PlaceID, &status, &t.Version, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if frequencyType != nil {
		t.FrequencyType = model.FrequencyType(*frequencyType)
	}
	t.Status = model.Status(status)
	return &t, nil
}
