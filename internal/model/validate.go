package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var frequencyTypes = []any{
	FrequencyDay,
	FrequencyWeek,
	FrequencyMonth,
	FrequencyYear,
	FrequencyNthWeekday,
}

// Validate checks the template invariants required before it is stored.
func (t *Template) Validate() error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.Start, validation.Required),
		validation.Field(&t.End,
			validation.Required,
			validation.By(func(any) error {
				if t.End.Before(t.Start) {
					return errors.New("must not be before start_datetime")
				}
				return nil
			}),
		),
		validation.Field(&t.Title, validation.Length(0, 255)),
		validation.Field(&t.FrequencyType,
			validation.When(t.IsRecurring, validation.Required),
			validation.In(frequencyTypes...),
		),
		validation.Field(&t.FrequencyNumber,
			validation.When(t.IsRecurring && t.FrequencyType == FrequencyDay, validation.Required),
			validation.Min(1),
		),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}
