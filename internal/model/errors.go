package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("concurrent modification")
	ErrValidation = errors.New("validation failed")
)

// ValidationError wraps field errors from input validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is allows errors.Is() to match against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
