package errors

import "errors"

// StopProcessingError is returned when the user quits an interactive picker.
// The CLI exits cleanly on it instead of reporting a failure.
type StopProcessingError struct {
	Reason string
	// ISBN of the book being handled when the user quit, if any.
	ISBN string
}

func (e *StopProcessingError) Error() string {
	if e.ISBN == "" {
		return e.Reason
	}
	return e.Reason + " at " + e.ISBN
}

func NewStopProcessingError(reason string) *StopProcessingError {
	return &StopProcessingError{Reason: reason}
}

// At records the book the user was looking at.
func (e *StopProcessingError) At(isbn string) *StopProcessingError {
	e.ISBN = isbn
	return e
}

// IsStopProcessingError reports whether err wraps a StopProcessingError.
func IsStopProcessingError(err error) bool {
	var stop *StopProcessingError
	return errors.As(err, &stop)
}
