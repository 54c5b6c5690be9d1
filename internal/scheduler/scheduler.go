// Package scheduler triggers the generation pass on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"calrecur/internal/calendar"
	appLog "calrecur/internal/log"
)

type generator interface {
	Generate(ctx context.Context, ref time.Time) (calendar.GenerateResult, error)
}

type Scheduler struct {
	gen  generator
	spec string
	loc  *time.Location
	now  func() time.Time
}

// New creates a Scheduler running gen on spec, a standard 5-field cron
// expression or descriptor such as "@daily", evaluated in loc.
func New(gen generator, spec string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{gen: gen, spec: spec, loc: loc, now: time.Now}
}

// Start runs the schedule until ctx is done and waits for a running pass to
// finish. Overlapping passes are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	c.Start()
	appLog.Info("scheduler started", "schedule", s.spec, "timezone", s.loc.String())

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("scheduler stopped")
	return nil
}

// Tick runs one generation pass with the current time as reference.
func (s *Scheduler) Tick(ctx context.Context) {
	ref := s.now().In(s.loc)
	res, err := s.gen.Generate(ctx, ref)
	if err != nil {
		appLog.Error("generation pass failed", err, "reference", ref, "failed", res.Failed)
		return
	}
	appLog.Debug("generation pass done", "reference", ref, "materialized", res.Materialized)
}

// cronLogger routes cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
