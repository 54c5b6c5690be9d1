package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
)

func TestErrorClassification(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsDuplicateError(dup))
	assert.False(t, IsDuplicateError(fk))
	assert.True(t, IsForeignKeyError(fk))
	assert.True(t, IsNoRowsError(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRowsError(errors.New("other")))
}

// newTestStore connects to CALRECUR_TEST_DATABASE_URL, migrates and returns a
// store whose tables are emptied after the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("CALRECUR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CALRECUR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := CreateConnectionPool(ctx, url)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `TRUNCATE calendar_events, template_calendar_events`)
		pool.Close()
	})
	return NewStore(pool)
}

func TestStoreIntegration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := model.OwnerID(42)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tmpl := &model.Template{
		Title:         "review",
		Start:         start,
		End:           start.Add(time.Hour),
		IsRecurring:   true,
		FrequencyType: model.FrequencyWeek,
		OwnerID:       &owner,
	}

	err := s.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.CreateTemplate(ctx, tmpl); err != nil {
			return err
		}
		return s.CreateEvent(ctx, &model.Event{TemplateID: tmpl.ID, Start: start, End: start.Add(time.Hour)})
	})
	require.NoError(t, err)

	got, err := s.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyWeek, got.FrequencyType)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner, *got.OwnerID)

	dup := &model.Event{TemplateID: tmpl.ID, Start: start, End: start.Add(time.Hour)}
	assert.ErrorIs(t, s.CreateEvent(ctx, dup), model.ErrConflict)

	end := start.AddDate(0, 1, 0)
	got.EndOfRecurring = &end
	require.NoError(t, s.UpdateTemplate(ctx, got))
	assert.ErrorIs(t, s.UpdateTemplate(ctx, tmpl), model.ErrConflict)

	active, err := s.ListTemplatesActiveIn(ctx, recurrence.MonthWindow(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)).End)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Len(t, active[0].Events, 1)

	byOwner, err := s.ListEventsByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)

	boom := errors.New("boom")
	err = s.ExecTx(ctx, func(ctx context.Context) error {
		if _, err := s.SoftDeleteEventsOf(ctx, tmpl.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	events, err := s.ListEvents(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "rolled back")
}
