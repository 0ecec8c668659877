package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiotblack/internal/model"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// SlotTakenMessage is shown when another customer booked the slot first.
const SlotTakenMessage = "Este horário acabou de ser reservado. Escolha outro horário."

const bookingColumns = `id, user_id, professional_id, service_id, date, time, status, notes,
	total_price, payment_method, payment_status, idempotency_key, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b   model.Booking
		key sql.NullString
	)
	err := row.Scan(&b.ID, &b.UserID, &b.ProfessionalID, &b.ServiceID, &b.Date, &b.Time, &b.Status, &b.Notes,
		&b.TotalPrice, &b.PaymentMethod, &b.PaymentStatus, &key, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if key.Valid {
		b.IdempotencyKey = key.String
	}
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
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
func (db *DB) OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT time FROM bookings
		WHERE professional_id = ? AND date = ? AND status NOT IN ('cancelled', 'no_show')
		ORDER BY time`, professionalID, date)
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

// CreateBooking inserts a scheduled booking. A booking already stored under
// the same idempotency key is returned as is. A slot held by another active
// booking fails with model.ErrSlotTaken.
func (db *DB) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	if nb.IdempotencyKey != "" {
		existing, err := db.bookingByKey(ctx, nb.IdempotencyKey)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := stamp(time.Now())
	b := &model.Booking{
		ID:             uuid.NewString(),
		UserID:         nb.UserID,
		ProfessionalID: nb.ProfessionalID,
		ServiceID:      nb.ServiceID,
		Date:           nb.Date,
		Time:           nb.Time,
		Status:         model.StatusScheduled,
		Notes:          nb.Notes,
		TotalPrice:     nb.TotalPrice,
		PaymentMethod:  nb.PaymentMethod,
		PaymentStatus:  nb.PaymentStatus,
		IdempotencyKey: nb.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var key sql.NullString
	if b.IdempotencyKey != "" {
		key = sql.NullString{String: b.IdempotencyKey, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.ProfessionalID, b.ServiceID, b.Date, b.Time, b.Status, b.Notes,
		b.TotalPrice, b.PaymentMethod, b.PaymentStatus, key, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("insert booking: %w", err)
		}
		if b.IdempotencyKey != "" {
			if existing, lookupErr := db.bookingByKey(ctx, b.IdempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, model.Public(SlotTakenMessage, model.ErrSlotTaken)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (db *DB) bookingByKey(ctx context.Context, key string) (*model.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = ?`, key))
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking by key: %w", err)
	}
	return b, nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}

// ListUserBookings returns the bookings of a user, most recent first.
func (db *DB) ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	out, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY date DESC, time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return out, nil
}

// ListBookingsBetween returns bookings dated from..to inclusive in
// chronological order.
func (db *DB) ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error) {
	out, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE date >= ? AND date <= ? ORDER BY date, time, professional_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings between: %w", err)
	}
	return out, nil
}

// CancelBooking moves a scheduled or confirmed booking to cancelled.
func (db *DB) CancelBooking(ctx context.Context, id string) (*model.Booking, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		model.StatusCancelled, stamp(time.Now()), id, model.StatusScheduled, model.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("cancel booking %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	b, err := db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return b, model.ErrNotCancellable
	}
	return b, nil
}

// UpdateBookingStatus sets the status of a booking.
func (db *DB) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	res, err := db.ExecContext(ctx, `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status, stamp(time.Now()), id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Public(SlotTakenMessage, model.ErrSlotTaken)
		}
		return nil, fmt.Errorf("update booking %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return db.GetBooking(ctx, id)
}

// CountBookingsByStatus counts bookings dated from..to inclusive per status.
func (db *DB) CountBookingsByStatus(ctx context.Context, from, to string) (map[model.BookingStatus]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM bookings
		WHERE date >= ? AND date <= ?
		GROUP BY status`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	defer rows.Close()

	out := make(map[model.BookingStatus]int)
	for rows.Next() {
		var (
			status model.BookingStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// DeleteBookingsBefore removes bookings dated before date together with
// their reminders.
func (db *DB) DeleteBookingsBefore(ctx context.Context, date string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM reminders
		WHERE booking_id IN (SELECT id FROM bookings WHERE date < ?)`, date); err != nil {
		return 0, fmt.Errorf("delete reminders before %s: %w", date, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE date < ?`, date)
	if err != nil {
		return 0, fmt.Errorf("delete bookings before %s: %w", date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
