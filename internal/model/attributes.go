package model

import "time"

// Attributes is a partial set of template/event fields supplied by a caller.
// A nil field was not provided and keeps its current value.
type Attributes struct {
	Title           *string        `json:"title,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Start           *time.Time     `json:"start_datetime,omitempty"`
	End             *time.Time     `json:"end_datetime,omitempty"`
	IsRecurring     *bool          `json:"is_recurring,omitempty"`
	FrequencyType   *FrequencyType `json:"frequency_type,omitempty"`
	FrequencyNumber *int           `json:"frequency_number,omitempty"`
	EndOfRecurring  *time.Time     `json:"end_of_recurring,omitempty"`
	IsPublic        *bool          `json:"is_public,omitempty"`
}

// ApplyTo overwrites the provided fields on t.
func (a Attributes) ApplyTo(t *Template) {
	if a.Title != nil {
		t.Title = *a.Title
	}
	if a.Description != nil {
		t.Description = *a.Description
	}
	if a.Start != nil {
		t.Start = *a.Start
	}
	if a.End != nil {
		t.End = *a.End
	}
	if a.IsRecurring != nil {
		t.IsRecurring = *a.IsRecurring
	}
	if a.FrequencyType != nil {
		t.FrequencyType = *a.FrequencyType
	}
	if a.FrequencyNumber != nil {
		n := *a.FrequencyNumber
		t.FrequencyNumber = &n
	}
	if a.EndOfRecurring != nil {
		e := *a.EndOfRecurring
		t.EndOfRecurring = &e
	}
	if a.IsPublic != nil {
		t.IsPublic = *a.IsPublic
	}
}

// DiffersFromTemplate compares every provided field except Start against t.
func (a Attributes) DiffersFromTemplate(t Template) bool {
	switch {
	case a.Title != nil && *a.Title != t.Title:
		return true
	case a.Description != nil && *a.Description != t.Description:
		return true
	case a.End != nil && !a.End.Equal(t.End):
		return true
	case a.IsRecurring != nil && *a.IsRecurring != t.IsRecurring:
		return true
	case a.FrequencyType != nil && *a.FrequencyType != t.FrequencyType:
		return true
	case a.FrequencyNumber != nil && (t.FrequencyNumber == nil || *a.FrequencyNumber != *t.FrequencyNumber):
		return true
	case a.EndOfRecurring != nil && (t.EndOfRecurring == nil || !a.EndOfRecurring.Equal(*t.EndOfRecurring)):
		return true
	case a.IsPublic != nil && *a.IsPublic != t.IsPublic:
		return true
	}
	return false
}

// SameDate reports whether a and b fall on the same calendar day in a's location.
func SameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
