// Package reminders schedules and delivers booking notifications: the
// immediate confirmation and the reminders before the appointment.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiotblack/internal/model"
)

// Kind identifies which notification of a booking a reminder is.
type Kind string

const KindConfirmed Kind = "confirmed"

// BeforeKind returns the kind of the reminder sent offset before the
// appointment, e.g. "before_24h" or "before_90m".
func BeforeKind(offset time.Duration) Kind {
	if offset%time.Hour == 0 {
		return Kind(fmt.Sprintf("before_%dh", int(offset/time.Hour)))
	}
	return Kind(fmt.Sprintf("before_%dm", int(offset/time.Minute)))
}

// Status is the delivery state of a reminder.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Reminder is a notification waiting for, or past, its delivery time.
type Reminder struct {
	ID         int64
	BookingID  string
	UserID     string
	Kind       Kind
	Title      string
	Body       string
	Payload    map[string]string
	DeliverAt  time.Time
	Status     Status
	RetryCount int
	LastError  string
	SentAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Notification returns the message delivered for r.
func (r *Reminder) Notification() Notification {
	return Notification{UserID: r.UserID, Title: r.Title, Body: r.Body, Payload: r.Payload}
}

// Filter selects reminders. Empty fields match everything.
type Filter struct {
	Status        []Status
	DueBefore     *time.Time
	UpdatedBefore *time.Time
	BookingID     string
	UserID        string
	Limit         int
}

// Repository stores reminders.
type Repository interface {
	// CreateReminder inserts r and sets its ID. A reminder with the same
	// booking and kind is left untouched and reported as ErrDuplicate.
	CreateReminder(ctx context.Context, r *Reminder) error
	UpdateReminder(ctx context.Context, r *Reminder) error
	FindReminders(ctx context.Context, filter Filter) ([]Reminder, error)
	// TryAcquireReminder moves a pending reminder to processing. It returns
	// false when another worker got there first.
	TryAcquireReminder(ctx context.Context, id int64) (bool, error)
	// ReleaseReminder returns a reminder still in processing to pending.
	ReleaseReminder(ctx context.Context, id int64) error
	DeleteReminders(ctx context.Context, filter Filter) (int64, error)
	// CancelBookingReminders cancels the pending reminders of a booking.
	CancelBookingReminders(ctx context.Context, bookingID string) (int64, error)
	CountPendingReminders(ctx context.Context) (int64, error)
}

// SettingsStore reads per-user reminder preferences.
type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error)
}

// ErrDuplicate is returned by CreateReminder when the reminder exists.
var ErrDuplicate = errors.New("reminder already scheduled")

// Notification is a message for one user.
type Notification struct {
	UserID  string            `json:"user_id"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Notifier delivers notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// SendError is a delivery failure reported by a channel. Code follows HTTP
// semantics: 429 asks to retry after RetryAfter; 400, 403 and 404 are
// permanent.
type SendError struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error %d: %s", e.Code, e.Message)
}

// AsSendError unwraps a *SendError from err.
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
