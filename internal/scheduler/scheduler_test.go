package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calrecur/internal/calendar"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, ref time.Time) (calendar.GenerateResult, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(calendar.GenerateResult), args.Error(1)
}

func TestTickUsesCurrentTimeInLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	gen := &mockGenerator{}
	s := New(gen, "@daily", loc)
	fixed := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	gen.On("Generate", mock.Anything, mock.MatchedBy(func(ref time.Time) bool {
		return ref.Equal(fixed) && ref.Location() == loc
	})).Return(calendar.GenerateResult{Materialized: 1}, nil).Once()

	s.Tick(context.Background())
	gen.AssertExpectations(t)
}

func TestTickHandlesError(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, "@daily", time.UTC)

	gen.On("Generate", mock.Anything, mock.Anything).
		Return(calendar.GenerateResult{Failed: 1}, errors.New("db error")).Once()

	s.Tick(context.Background())
	gen.AssertExpectations(t)
}

func TestStartRunsOnSchedule(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, "@every 1s", time.UTC)

	gen.On("Generate", mock.Anything, mock.Anything).Return(calendar.GenerateResult{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.GreaterOrEqual(t, len(gen.Calls), 1)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&mockGenerator{}, "not a schedule", time.UTC)

	err := s.Start(context.Background())
	assert.Error(t, err)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := New(&mockGenerator{}, "@daily", time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
