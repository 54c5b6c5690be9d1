package web

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"calrecur/internal/model"
)

const monthLayout = "2006-01"

// eventRequest is the body of POST /api/events and PATCH /api/events/{id}.
type eventRequest struct {
	model.Attributes
	OwnerID *model.OwnerID `json:"owner_id,omitempty"`
	PlaceID *model.PlaceID `json:"place_id,omitempty"`
}

func (req *eventRequest) validateCreate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&req.Start, validation.Required),
		validation.Field(&req.End, validation.Required),
		validation.Field(&req.FrequencyNumber, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&req.OwnerID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		validation.Field(&req.PlaceID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	)
}

func (req *eventRequest) validateEdit() error {
	a := req.Attributes
	if a.Title == nil && a.Description == nil && a.Start == nil && a.End == nil &&
		a.IsRecurring == nil && a.FrequencyType == nil && a.FrequencyNumber == nil &&
		a.EndOfRecurring == nil && a.IsPublic == nil && req.OwnerID == nil && req.PlaceID == nil {
		return errors.New("at least one field must be provided")
	}
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.NilOrNotEmpty, validation.Length(1, 255)),
		validation.Field(&req.FrequencyNumber, validation.NilOrNotEmpty, validation.Min(1)),
		validation.Field(&req.OwnerID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		validation.Field(&req.PlaceID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	)
}

// eventView is an event with the template fields needed to display it.
type eventView struct {
	model.Event
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	IsRecurring bool                `json:"is_recurring"`
	Frequency   model.FrequencyType `json:"frequency_type,omitempty"`
	IsPublic    bool                `json:"is_public"`
	OwnerID     *model.OwnerID      `json:"owner_id,omitempty"`
	PlaceID     *model.PlaceID      `json:"place_id,omitempty"`
}

func newEventView(e model.Event, t model.Template) eventView {
	return eventView{
		Event:       e,
		Title:       t.Title,
		Description: t.Description,
		IsRecurring: t.IsRecurring,
		Frequency:   t.FrequencyType,
		IsPublic:    t.IsPublic,
		OwnerID:     t.OwnerID,
		PlaceID:     t.PlaceID,
	}
}

type monthResponse struct {
	Month    string      `json:"month"`
	Start    time.Time   `json:"range_start"`
	End      time.Time   `json:"range_end"`
	Timezone string      `json:"timezone"`
	Events   []eventView `json:"events"`
}

type templateResponse struct {
	*model.Template
	Events []model.Event `json:"events"`
}

type editResponse struct {
	Changed bool         `json:"changed"`
	Event   *model.Event `json:"event,omitempty"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type generateResponse struct {
	Reference    time.Time     `json:"reference"`
	Materialized int           `json:"materialized"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Events       []model.Event `json:"events"`
	Error        string        `json:"error,omitempty"`
}
