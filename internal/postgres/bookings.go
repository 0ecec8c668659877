package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiotblack/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SlotTakenMessage is shown when another customer booked the slot first.
const SlotTakenMessage = "Este horário acabou de ser reservado. Escolha outro horário."

const bookingColumns = `id, client_id, professional_id, service_id,
	to_char(booking_date, 'YYYY-MM-DD'), to_char(booking_time, 'HH24:MI'),
	status, notes, total_price::float8, payment_method, payment_status,
	idempotency_key, created_at, updated_at`

type bookingRow struct {
	ID             string
	ClientID       string
	ProfessionalID string
	ServiceID      string
	BookingDate    string
	BookingTime    string
	Status         string
	Notes          string
	TotalPrice     float64
	PaymentMethod  string
	PaymentStatus  string
	IdempotencyKey *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var r bookingRow
	err := row.Scan(&r.ID, &r.ClientID, &r.ProfessionalID, &r.ServiceID, &r.BookingDate, &r.BookingTime,
		&r.Status, &r.Notes, &r.TotalPrice, &r.PaymentMethod, &r.PaymentStatus,
		&r.IdempotencyKey, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b := r.toModel()
	return &b, nil
}

func (r bookingRow) toModel() model.Booking {
	return model.Booking{
		ID:             r.ID,
		UserID:         r.ClientID,
		ProfessionalID: r.ProfessionalID,
		ServiceID:      r.ServiceID,
		Date:           r.BookingDate,
		Time:           r.BookingTime,
		Status:         model.BookingStatus(r.Status),
		Notes:          r.Notes,
		TotalPrice:     r.TotalPrice,
		PaymentMethod:  r.PaymentMethod,
		PaymentStatus:  r.PaymentStatus,
		IdempotencyKey: deref(r.IdempotencyKey),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// OccupiedSlots returns the times already held on date by the professional.
func (s *Store) OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(booking_time, 'HH24:MI') FROM bookings
		WHERE professional_id = $1 AND booking_date = $2::date AND status NOT IN ('cancelled', 'no_show')
		ORDER BY booking_time`, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("occupied slots: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateBooking inserts a scheduled booking. A replayed idempotency key
// returns the stored booking; a slot held by another active booking fails
// with model.ErrSlotTaken.
func (s *Store) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	if nb.IdempotencyKey != "" {
		existing, err := s.bookingByKey(ctx, nb.IdempotencyKey)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	var key *string
	if nb.IdempotencyKey != "" {
		key = &nb.IdempotencyKey
	}

	b, err := scanBooking(s.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, client_id, professional_id, service_id, booking_date, booking_time,
			status, notes, total_price, payment_method, payment_status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8, $9, $10, $11, $12)
		RETURNING `+bookingColumns,
		uuid.NewString(), nb.UserID, nb.ProfessionalID, nb.ServiceID, nb.Date, nb.Time,
		string(model.StatusScheduled), nb.Notes, nb.TotalPrice, nb.PaymentMethod, nb.PaymentStatus, key,
	))
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("insert booking: %w", err)
		}
		if nb.IdempotencyKey != "" {
			if existing, lookupErr := s.bookingByKey(ctx, nb.IdempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, model.Public(SlotTakenMessage, model.ErrSlotTaken)
	}
	return b, nil
}

func (s *Store) bookingByKey(ctx context.Context, key string) (*model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking by key: %w", err)
	}
	return b, nil
}

// GetBooking returns a booking by id.
func (s *Store) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}

// ListUserBookings returns the bookings of a user, most recent first.
func (s *Store) ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	out, err := s.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE client_id = $1
		 ORDER BY booking_date DESC, booking_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return out, nil
}

// ListBookingsBetween returns bookings dated from..to inclusive in
// chronological order.
func (s *Store) ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error) {
	out, err := s.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_date BETWEEN $1::date AND $2::date
		 ORDER BY booking_date, booking_time, professional_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings between: %w", err)
	}
	return out, nil
}

// CancelBooking moves a scheduled or confirmed booking to cancelled.
func (s *Store) CancelBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		UPDATE bookings SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
		RETURNING `+bookingColumns,
		string(model.StatusCancelled), id, string(model.StatusScheduled), string(model.StatusConfirmed)))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cancel booking %s: %w", id, err)
	}
	current, getErr := s.GetBooking(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return current, model.ErrNotCancellable
}

// UpdateBookingStatus sets the status of a booking.
func (s *Store) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	b, err := scanBooking(s.pool.QueryRow(ctx,
		`UPDATE bookings SET status = $1, updated_at = now() WHERE id = $2 RETURNING `+bookingColumns,
		string(status), id))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, model.ErrNotFound
	case isUniqueViolation(err):
		return nil, model.Public(SlotTakenMessage, model.ErrSlotTaken)
	case err != nil:
		return nil, fmt.Errorf("update booking %s: %w", id, err)
	}
	return b, nil
}

// CountBookingsByStatus counts bookings dated from..to inclusive per status.
func (s *Store) CountBookingsByStatus(ctx context.Context, from, to string) (map[model.BookingStatus]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM bookings
		WHERE booking_date BETWEEN $1::date AND $2::date
		GROUP BY status`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	defer rows.Close()

	out := make(map[model.BookingStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.BookingStatus(status)] = n
	}
	return out, rows.Err()
}
