package model

import (
	"time"

	"github.com/google/uuid"
)

// FrequencyType names how a recurring template repeats.
type FrequencyType string

const (
	FrequencyDay        FrequencyType = "day"
	FrequencyWeek       FrequencyType = "week"
	FrequencyMonth      FrequencyType = "month"
	FrequencyYear       FrequencyType = "year"
	FrequencyNthWeekday FrequencyType = "nthweekday"
)

// Valid reports whether f is one of the supported frequency kinds.
func (f FrequencyType) Valid() bool {
	switch f {
	case FrequencyDay, FrequencyWeek, FrequencyMonth, FrequencyYear, FrequencyNthWeekday:
		return true
	}
	return false
}

// Status is the soft-delete marker shared by templates and events.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// OwnerID and PlaceID are opaque foreign identities owned by other systems.
type (
	OwnerID int64
	PlaceID int64
)

// Template is a recurrence rule plus the default time range of the events
// generated from it. Start/End form the anchor occurrence.
type Template struct {
	ID       uuid.UUID  `json:"id"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description"`

	Start time.Time `json:"start_datetime"`
	End   time.Time `json:"end_datetime"`

	IsRecurring     bool          `json:"is_recurring"`
	FrequencyType   FrequencyType `json:"frequency_type,omitempty"`
	FrequencyNumber *int          `json:"frequency_number,omitempty"`
	// EndOfRecurring nil means the template repeats forever.
	EndOfRecurring *time.Time `json:"end_of_recurring,omitempty"`
	IsPublic       bool       `json:"is_public"`

	OwnerID *OwnerID `json:"owner_id,omitempty"`
	PlaceID *PlaceID `json:"place_id,omitempty"`

	Status  Status `json:"status"`
	Version int    `json:"version"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Events is populated by queries that eager-load a template's events.
	Events []Event `json:"-"`
}

// Duration is reused for every occurrence generated from the template.
func (t Template) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Interval is the frequency multiplier, at least 1.
func (t Template) Interval() int {
	if t.FrequencyNumber != nil && *t.FrequencyNumber > 0 {
		return *t.FrequencyNumber
	}
	return 1
}

func (t Template) IsDeleted() bool {
	return t.Status == StatusDeleted
}

// Recurs reports whether the template repeats with a known frequency.
func (t Template) Recurs() bool {
	return t.IsRecurring && t.FrequencyType.Valid()
}

// EndsBefore reports whether the recurrence is closed before instant.
func (t Template) EndsBefore(instant time.Time) bool {
	return t.EndOfRecurring != nil && instant.After(*t.EndOfRecurring)
}

// Event is one concrete, dated occurrence of a template.
type Event struct {
	ID         uuid.UUID `json:"id"`
	TemplateID uuid.UUID `json:"template_id"`

	Start time.Time `json:"start_datetime"`
	End   time.Time `json:"end_datetime"`

	Status Status `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// IsVirtual marks a projected occurrence that was never stored.
	IsVirtual bool `json:"is_virtual"`
}

func (e Event) IsDeleted() bool {
	return e.Status == StatusDeleted
}

// NewVirtualEvent projects an occurrence of t starting at start.
func NewVirtualEvent(t Template, start time.Time) Event {
	return Event{
		TemplateID: t.ID,
		Start:      start,
		End:        start.Add(t.Duration()),
		Status:     StatusActive,
		IsVirtual:  true,
	}
}
