// Package service applies the booking rules shared by the Telegram bot and
// the HTTP API on top of the configured store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studiotblack/internal/access"
	"studiotblack/internal/events"
	"studiotblack/internal/metrics"
	"studiotblack/internal/model"

	"github.com/rs/zerolog"
)

// NotCancellableMessage is shown when a booking already left the
// scheduled/confirmed states.
const NotCancellableMessage = "Este agendamento não pode mais ser cancelado."

// Store is the persistence surface used by Bookings. It is implemented by
// the sqlite and postgres stores.
type Store interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error)
	CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error)
	ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error)
	CancelBooking(ctx context.Context, id string) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error)
	CountBookingsByStatus(ctx context.Context, from, to string) (map[model.BookingStatus]int, error)
}

// Catalog lists services and professionals, possibly from a cache.
type Catalog interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
}

type ReminderCanceller interface {
	CancelForBooking(ctx context.Context, bookingID string) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Access decides who may book and who manages the shop.
type Access interface {
	CheckCustomer(ctx context.Context, userID string) error
	IsManager(userID string) bool
}

type Deps struct {
	Store     Store
	Catalog   Catalog
	Reminders ReminderCanceller
	Events    Publisher
	Access    Access
	Logger    *zerolog.Logger
}

type Options struct {
	// CancelReminders drops pending reminders when a booking is cancelled
	// or marked as a no-show.
	CancelReminders bool
}

// Bookings wraps the store with validation, access checks, metrics and
// domain events. It satisfies booking.Backend.
type Bookings struct {
	store     Store
	catalog   Catalog
	reminders ReminderCanceller
	events    Publisher
	access    Access
	opts      Options
	logger    *zerolog.Logger
}

func NewBookings(deps Deps, opts Options) *Bookings {
	if deps.Catalog == nil {
		deps.Catalog = deps.Store
	}
	if deps.Logger == nil {
		l := zerolog.Nop()
		deps.Logger = &l
	}
	l := deps.Logger.With().Str("component", "bookings").Logger()
	return &Bookings{
		store:     deps.Store,
		catalog:   deps.Catalog,
		reminders: deps.Reminders,
		events:    deps.Events,
		access:    deps.Access,
		opts:      opts,
		logger:    &l,
	}
}

func (s *Bookings) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.catalog.ListServices(ctx)
}

func (s *Bookings) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	return s.catalog.ListProfessionals(ctx)
}

func (s *Bookings) GetService(ctx context.Context, id string) (*model.Service, error) {
	return s.store.GetService(ctx, id)
}

// ProfessionalsFor returns the professionals offered for serviceID.
func (s *Bookings) ProfessionalsFor(ctx context.Context, serviceID string) ([]model.Professional, error) {
	all, err := s.catalog.ListProfessionals(ctx)
	if err != nil {
		return nil, err
	}
	return model.OfferingService(all, serviceID), nil
}

func (s *Bookings) OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error) {
	return s.store.OccupiedSlots(ctx, professionalID, date)
}

// CreateBooking validates nb, checks the blocklist and stores the booking.
func (s *Bookings) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	if s.access != nil {
		if err := s.access.CheckCustomer(ctx, nb.UserID); err != nil {
			return nil, err
		}
	}
	if err := model.Validate(nb); err != nil {
		return nil, err
	}
	if _, err := s.store.GetService(ctx, nb.ServiceID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.FieldErrors{{Field: "ServiceID", Message: "unknown service"}}
		}
		return nil, err
	}

	b, err := s.store.CreateBooking(ctx, nb)
	if err != nil {
		return nil, err
	}
	metrics.IncBookingCreated(channelOf(b.UserID))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("user_id", b.UserID).
		Str("professional_id", b.ProfessionalID).
		Str("date", b.Date).
		Str("time", b.Time).
		Msg("booking stored")
	s.publish(ctx, events.BookingCreated, *b)
	return b, nil
}

func (s *Bookings) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *Bookings) ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	return s.store.ListUserBookings(ctx, userID)
}

// UpcomingUserBookings returns the active bookings of userID dated today or
// later, soonest first.
func (s *Bookings) UpcomingUserBookings(ctx context.Context, userID, today string) ([]model.Booking, error) {
	all, err := s.store.ListUserBookings(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.Booking
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Date >= today && all[i].Status.Active() && all[i].Status != model.StatusCompleted {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *Bookings) ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error) {
	return s.store.ListBookingsBetween(ctx, from, to)
}

// CancelBooking cancels booking id on behalf of userID, who must own it or
// be a manager.
func (s *Bookings) CancelBooking(ctx context.Context, id, userID string) (*model.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID && !s.isManager(ctx, userID) {
		return nil, model.ErrForbidden
	}

	b, err := s.store.CancelBooking(ctx, id)
	if errors.Is(err, model.ErrNotCancellable) {
		return b, model.Public(NotCancellableMessage, err)
	}
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled()
	s.logger.Info().Str("booking_id", id).Str("by", userID).Msg("booking cancelled")
	s.publish(ctx, events.BookingCancelled, *b)
	s.cancelReminders(ctx, id)
	return b, nil
}

// UpdateStatus lets a manager move a booking to another status.
func (s *Bookings) UpdateStatus(ctx context.Context, id string, status model.BookingStatus, by string) (*model.Booking, error) {
	if !s.isManager(ctx, by) {
		return nil, model.ErrForbidden
	}
	if !status.Valid() || status == model.StatusScheduled {
		return nil, model.FieldErrors{{Field: "Status", Message: fmt.Sprintf("cannot set status %q", status)}}
	}

	b, err := s.store.UpdateBookingStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingStatus(string(status))
	s.logger.Info().Str("booking_id", id).Str("status", string(status)).Str("by", by).Msg("booking status changed")
	s.publish(ctx, events.BookingStatusChanged, *b)
	if !status.Active() {
		s.cancelReminders(ctx, id)
	}
	return b, nil
}

func (s *Bookings) isManager(ctx context.Context, userID string) bool {
	if access.GrantedManager(ctx) {
		return true
	}
	return s.access != nil && s.access.IsManager(userID)
}

func (s *Bookings) cancelReminders(ctx context.Context, bookingID string) {
	if !s.opts.CancelReminders || s.reminders == nil {
		return
	}
	if _, err := s.reminders.CancelForBooking(ctx, bookingID); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", bookingID).Msg("failed to cancel reminders")
	}
}

func (s *Bookings) publish(ctx context.Context, eventType string, b model.Booking) {
	if s.events == nil {
		return
	}
	ev, err := events.NewBookingEvent(eventType, b)
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("encode event")
		return
	}
	s.events.Publish(ctx, ev)
}

func channelOf(userID string) string {
	if strings.HasPrefix(userID, "tg:") {
		return "telegram"
	}
	return "app"
}
