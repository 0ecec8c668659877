package model

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrSlotTaken      = errors.New("slot already booked")
	ErrNotCancellable = errors.New("booking cannot be cancelled")
	ErrForbidden      = errors.New("forbidden")
)

// PublicError carries a message that can be shown to the customer as is.
type PublicError struct {
	Message string
	Err     error
}

func (e *PublicError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PublicError) Unwrap() error { return e.Err }

// UserMessage returns the customer-facing message.
func (e *PublicError) UserMessage() string { return e.Message }

// Public wraps err with a customer-facing message.
func Public(message string, err error) error {
	return &PublicError{Message: message, Err: err}
}
