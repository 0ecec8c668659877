package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"studiotblack/internal/reminders"
)

const reminderColumns = `id, booking_id, user_id, kind, title, body, payload, deliver_at,
	status, retry_count, last_error, sent_at, created_at, updated_at`

// CreateReminder inserts r. A reminder with the same booking and kind is
// reported as reminders.ErrDuplicate.
func (db *DB) CreateReminder(ctx context.Context, r *reminders.Reminder) error {
	payload, err := encodePayload(r.Payload)
	if err != nil {
		return err
	}
	now := stamp(time.Now())
	if r.Status == "" {
		r.Status = reminders.StatusPending
	}
	r.CreatedAt, r.UpdatedAt = now, now

	res, err := db.ExecContext(ctx, `
		INSERT INTO reminders (booking_id, user_id, kind, title, body, payload, deliver_at,
			status, retry_count, last_error, sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(booking_id, kind) DO NOTHING`,
		r.BookingID, r.UserID, r.Kind, r.Title, r.Body, payload, stamp(r.DeliverAt),
		r.Status, r.RetryCount, r.LastError, nullTime(r.SentAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reminders.ErrDuplicate
	}
	r.ID, err = res.LastInsertId()
	return err
}

// UpdateReminder writes the mutable fields of r.
func (db *DB) UpdateReminder(ctx context.Context, r *reminders.Reminder) error {
	payload, err := encodePayload(r.Payload)
	if err != nil {
		return err
	}
	r.UpdatedAt = stamp(time.Now())
	_, err = db.ExecContext(ctx, `
		UPDATE reminders SET title = ?, body = ?, payload = ?, deliver_at = ?, status = ?,
			retry_count = ?, last_error = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		r.Title, r.Body, payload, stamp(r.DeliverAt), r.Status,
		r.RetryCount, r.LastError, nullTime(r.SentAt), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reminder %d: %w", r.ID, err)
	}
	return nil
}

// FindReminders returns reminders matching filter ordered by delivery time.
func (db *DB) FindReminders(ctx context.Context, filter reminders.Filter) ([]reminders.Reminder, error) {
	where, args := reminderWhere(filter)
	query := `SELECT ` + reminderColumns + ` FROM reminders` + where + ` ORDER BY deliver_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find reminders: %w", err)
	}
	defer rows.Close()

	var out []reminders.Reminder
	for rows.Next() {
		var (
			r       reminders.Reminder
			payload sql.NullString
			sentAt  sql.NullTime
		)
		err := rows.Scan(&r.ID, &r.BookingID, &r.UserID, &r.Kind, &r.Title, &r.Body, &payload, &r.DeliverAt,
			&r.Status, &r.RetryCount, &r.LastError, &sentAt, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &r.Payload); err != nil {
				return nil, fmt.Errorf("reminder %d payload: %w", r.ID, err)
			}
		}
		if sentAt.Valid {
			t := sentAt.Time
			r.SentAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TryAcquireReminder moves a pending reminder to processing.
func (db *DB) TryAcquireReminder(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		reminders.StatusProcessing, stamp(time.Now()), id, reminders.StatusPending)
	if err != nil {
		return false, fmt.Errorf("acquire reminder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseReminder puts a reminder left in processing back to pending.
func (db *DB) ReleaseReminder(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		reminders.StatusPending, stamp(time.Now()), id, reminders.StatusProcessing)
	return err
}

// DeleteReminders deletes reminders matching filter.
func (db *DB) DeleteReminders(ctx context.Context, filter reminders.Filter) (int64, error) {
	where, args := reminderWhere(filter)
	res, err := db.ExecContext(ctx, `DELETE FROM reminders`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete reminders: %w", err)
	}
	return res.RowsAffected()
}

// CancelBookingReminders cancels the pending reminders of a booking.
func (db *DB) CancelBookingReminders(ctx context.Context, bookingID string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE booking_id = ? AND status = ?`,
		reminders.StatusCancelled, stamp(time.Now()), bookingID, reminders.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders of %s: %w", bookingID, err)
	}
	return res.RowsAffected()
}

// CountPendingReminders returns how many reminders wait for delivery.
func (db *DB) CountPendingReminders(ctx context.Context) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders WHERE status = ?`,
		reminders.StatusPending).Scan(&n)
	return n, err
}

func reminderWhere(f reminders.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Status) > 0 {
		marks := make([]string, len(f.Status))
		for i, s := range f.Status {
			marks[i] = "?"
			args = append(args, s)
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.DueBefore != nil {
		conds = append(conds, "deliver_at <= ?")
		args = append(args, stamp(*f.DueBefore))
	}
	if f.UpdatedBefore != nil {
		conds = append(conds, "updated_at < ?")
		args = append(args, stamp(*f.UpdatedBefore))
	}
	if f.BookingID != "" {
		conds = append(conds, "booking_id = ?")
		args = append(args, f.BookingID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func encodePayload(p map[string]string) (sql.NullString, error) {
	if len(p) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: stamp(*t), Valid: true}
}
