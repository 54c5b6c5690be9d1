package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"calrecur/internal/calendar"
	"calrecur/internal/model"
)

const productID = "-//calrecur//calendar//EN"

// MonthCalendar renders the events of month, virtual occurrences included,
// as a VCALENDAR. Virtual occurrences are marked TENTATIVE.
func MonthCalendar(month *calendar.Month, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(fmt.Sprintf("calrecur %s", month.Window.Start.Format("2006-01")))

	for _, e := range month.Events {
		t := month.Templates[e.TemplateID]
		ve := cal.AddEvent(eventUID(e))
		ve.SetDtStampTime(now.UTC())
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())
		ve.SetSummary(t.Title)
		if t.Description != "" {
			ve.SetDescription(t.Description)
		}
		if e.IsVirtual {
			ve.SetStatus(ical.ObjectStatusTentative)
		} else {
			ve.SetStatus(ical.ObjectStatusConfirmed)
			ve.SetCreatedTime(e.CreatedAt.UTC())
			ve.SetModifiedAt(e.UpdatedAt.UTC())
		}
		if t.IsPublic {
			ve.SetClass(ical.ClassificationPublic)
		} else {
			ve.SetClass(ical.ClassificationPrivate)
		}
	}
	return cal
}

// WriteMonth serializes MonthCalendar to w.
func WriteMonth(w io.Writer, month *calendar.Month, now time.Time) error {
	_, err := io.WriteString(w, MonthCalendar(month, now).Serialize())
	return err
}

// eventUID is stable for a stored event and for a projected one, which has
// no id until it is materialized.
func eventUID(e model.Event) string {
	if e.IsVirtual {
		return fmt.Sprintf("%s-%s@calrecur", e.TemplateID, e.Start.UTC().Format("20060102T150405Z"))
	}
	return e.ID.String() + "@calrecur"
}
