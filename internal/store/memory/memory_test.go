package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calrecur/internal/model"
	"calrecur/internal/recurrence"
)

func newTemplate(start time.Time) *model.Template {
	return &model.Template{
		Title:         "gym",
		Start:         start,
		End:           start.Add(time.Hour),
		IsRecurring:   true,
		FrequencyType: model.FrequencyWeek,
	}
}

func TestTemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	tmpl := newTemplate(time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, s.CreateTemplate(ctx, tmpl))
	assert.Equal(t, 1, tmpl.Version)
	assert.Equal(t, model.StatusActive, tmpl.Status)

	got, err := s.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "gym", got.Title)

	got.Title = "yoga"
	require.NoError(t, s.UpdateTemplate(ctx, got))
	assert.Equal(t, 2, got.Version)

	// tmpl still carries version 1.
	tmpl.Title = "stale"
	err = s.UpdateTemplate(ctx, tmpl)
	assert.ErrorIs(t, err, model.ErrConflict)

	require.NoError(t, s.SoftDeleteTemplate(ctx, tmpl.ID))
	_, err = s.GetTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEventsAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	tmpl := newTemplate(start)
	require.NoError(t, s.CreateTemplate(ctx, tmpl))

	for i := range 3 {
		ev := &model.Event{TemplateID: tmpl.ID, Start: start.AddDate(0, 0, 7*i), End: start.AddDate(0, 0, 7*i).Add(time.Hour)}
		require.NoError(t, s.CreateEvent(ctx, ev))
	}

	dup := &model.Event{TemplateID: tmpl.ID, Start: start, End: start.Add(time.Hour)}
	assert.ErrorIs(t, s.CreateEvent(ctx, dup), model.ErrConflict)

	events, err := s.ListEvents(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].Start.Before(events[1].Start))

	n, err := s.SoftDeleteEventsAfter(ctx, tmpl.ID, start)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err = s.ListEvents(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	exists, err := s.EventExistsAt(ctx, tmpl.ID, start.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.True(t, exists, "soft-deleted events still count")

	ok, err := s.SoftDeleteEvent(ctx, events[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SoftDeleteEvent(ctx, events[0].ID)
	require.NoError(t, err)
	assert.False(t, ok, "already deleted")
}

func TestExecTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	tmpl := newTemplate(time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))
	err := s.ExecTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CreateTemplate(ctx, tmpl))
		return s.ExecTx(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTemplate(ctx, tmpl.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = s.ExecTx(ctx, func(ctx context.Context) error {
		return s.CreateTemplate(ctx, newTemplate(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	})
	require.NoError(t, err)
	all, err := s.ListRecurringTemplates(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOwnerAndPlaceLookups(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := model.OwnerID(7)
	place := model.PlaceID(3)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mine := newTemplate(start)
	mine.OwnerID = &owner
	require.NoError(t, s.CreateTemplate(ctx, mine))
	require.NoError(t, s.CreateEvent(ctx, &model.Event{TemplateID: mine.ID, Start: start, End: start.Add(time.Hour)}))

	other := newTemplate(start)
	other.PlaceID = &place
	require.NoError(t, s.CreateTemplate(ctx, other))
	require.NoError(t, s.CreateEvent(ctx, &model.Event{TemplateID: other.ID, Start: start, End: start.Add(time.Hour)}))

	byOwner, err := s.ListEventsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, mine.ID, byOwner[0].TemplateID)

	byPlace, err := s.ListEventsByPlace(ctx, place)
	require.NoError(t, err)
	require.Len(t, byPlace, 1)
	assert.Equal(t, other.ID, byPlace[0].TemplateID)
}

func TestWindowQueries(t *testing.T) {
	ctx := context.Background()
	s := New()

	jan := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	open := newTemplate(jan)
	require.NoError(t, s.CreateTemplate(ctx, open))

	ended := newTemplate(jan)
	endedAt := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	ended.EndOfRecurring = &endedAt
	require.NoError(t, s.CreateTemplate(ctx, ended))

	oneOff := newTemplate(time.Date(2024, 2, 3, 9, 0, 0, 0, time.UTC))
	oneOff.IsRecurring = false
	oneOff.FrequencyType = ""
	require.NoError(t, s.CreateTemplate(ctx, oneOff))

	recurring, err := s.ListRecurringTemplates(ctx, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, recurring, 1)
	assert.Equal(t, open.ID, recurring[0].ID)

	janEnd := recurrence.MonthWindow(jan).End
	active, err := s.ListTemplatesActiveIn(ctx, janEnd)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	febEnd := recurrence.MonthWindow(oneOff.Start).End
	active, err = s.ListTemplatesActiveIn(ctx, febEnd)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.ElementsMatch(t, []any{open.ID, oneOff.ID}, []any{active[0].ID, active[1].ID})
}
