package ics

import (
	"context"
	"errors"
	"fmt"

	appLog "calrecur/internal/log"
	"calrecur/internal/model"
)

type eventCreator interface {
	CreateEvent(ctx context.Context, attrs model.Attributes, owner *model.OwnerID, place *model.PlaceID) (*model.Event, error)
}

// ImportResult counts what one feed produced.
type ImportResult struct {
	Source   Source
	Created  int
	Skipped  int
	Failed   int
	Excluded int
}

// Importer turns VEVENTs into templates.
type Importer struct {
	creator eventCreator
	fetcher *Fetcher
}

func NewImporter(creator eventCreator, fetcher *Fetcher) *Importer {
	return &Importer{creator: creator, fetcher: fetcher}
}

// ImportAll fetches and imports every source, continuing past failing ones.
func (im *Importer) ImportAll(ctx context.Context, sources []Source) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(sources))
	var errs []error
	for _, src := range sources {
		res, err := im.ImportSource(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", src.ID, err))
			appLog.Error("ics import failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ImportSource fetches src and imports its events.
func (im *Importer) ImportSource(ctx context.Context, src Source) (ImportResult, error) {
	fetched, err := im.fetcher.FetchOne(ctx, src)
	if err != nil {
		return ImportResult{Source: src}, err
	}
	return im.Import(ctx, src, fetched.Body)
}

// Import creates one template per importable VEVENT of body. Overrides of
// single instances and rules no frequency type can express are skipped;
// EXDATEs are not carried over and only counted.
func (im *Importer) Import(ctx context.Context, src Source, body []byte) (ImportResult, error) {
	res := ImportResult{Source: src}

	events, err := Parse(src, body)
	if err != nil {
		return res, err
	}

	for _, ev := range events {
		if ev.IsOverride {
			res.Skipped++
			continue
		}
		attrs, err := Attributes(ev)
		if err != nil {
			res.Skipped++
			appLog.Warn("skipping vevent", "id", src.ID, "uid", ev.UID, "err", err)
			continue
		}
		if _, err := im.creator.CreateEvent(ctx, attrs, src.Owner, nil); err != nil {
			if errors.Is(err, model.ErrValidation) {
				res.Skipped++
				appLog.Warn("skipping invalid vevent", "id", src.ID, "uid", ev.UID, "err", err)
				continue
			}
			res.Failed++
			return res, fmt.Errorf("create %s: %w", ev.UID, err)
		}
		res.Created++
		res.Excluded += len(ev.ExDates)
	}

	appLog.Info("ics import finished",
		"id", src.ID,
		"created", res.Created,
		"skipped", res.Skipped,
		"exdates_ignored", res.Excluded,
	)
	return res, nil
}
