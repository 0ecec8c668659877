package model

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusScheduled  BookingStatus = "scheduled"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusNoShow     BookingStatus = "no_show"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the booking still holds its slot.
func (s BookingStatus) Active() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Cancellable reports whether a customer may still cancel.
func (s BookingStatus) Cancellable() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Booking is a scheduled appointment linking a user, a professional and a service.
type Booking struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	ProfessionalID string        `json:"professional_id"`
	ServiceID      string        `json:"service_id"`
	Date           string        `json:"date"` // YYYY-MM-DD
	Time           string        `json:"time"` // HH:MM
	Status         BookingStatus `json:"status"`
	Notes          string        `json:"notes"`
	TotalPrice     float64       `json:"total_price"`
	PaymentMethod  string        `json:"payment_method,omitempty"`
	PaymentStatus  string        `json:"payment_status,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// StartsAt combines Date and Time in loc.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, error) {
	return CombineDateTime(b.Date, b.Time, loc)
}

// NewBooking is the record submitted to the store when a flow is confirmed.
type NewBooking struct {
	UserID         string  `json:"user_id" validate:"required"`
	ProfessionalID string  `json:"professional_id" validate:"required"`
	ServiceID      string  `json:"service_id" validate:"required"`
	Date           string  `json:"date" validate:"required,isodate"`
	Time           string  `json:"time" validate:"required,hhmm"`
	Notes          string  `json:"notes" validate:"max=1000"`
	TotalPrice     float64 `json:"total_price" validate:"gte=0"`
	PaymentMethod  string  `json:"payment_method,omitempty"`
	PaymentStatus  string  `json:"payment_status,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// CombineDateTime parses a YYYY-MM-DD date and an HH:MM time in loc.
func CombineDateTime(date, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse booking time %q %q: %w", date, hhmm, err)
	}
	return t, nil
}
