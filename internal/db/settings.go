package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiotblack/internal/model"
)

// GetUserSettings returns the settings of a user. Users without a row get
// reminders enabled with the configured offsets (ReminderHoursBefore 0).
func (db *DB) GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	s := model.UserSettings{UserID: userID}
	err := db.QueryRowContext(ctx,
		`SELECT reminders_enabled, reminder_hours_before, updated_at FROM user_settings WHERE user_id = ?`,
		userID,
	).Scan(&s.RemindersEnabled, &s.ReminderHoursBefore, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.RemindersEnabled = true
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user settings %s: %w", userID, err)
	}
	return &s, nil
}

func (db *DB) UpsertUserSettings(ctx context.Context, userID string, remindersEnabled bool, hoursBefore int) error {
	now := stamp(time.Now())
	_, err := db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, reminders_enabled, reminder_hours_before, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reminders_enabled = excluded.reminders_enabled,
			reminder_hours_before = excluded.reminder_hours_before,
			updated_at = excluded.updated_at`,
		userID, remindersEnabled, hoursBefore, now, now)
	if err != nil {
		return fmt.Errorf("upsert user settings %s: %w", userID, err)
	}
	return nil
}

// ToggleReminders flips the reminder setting of a user in one statement
// and returns the new state. A user without settings starts enabled, so
// the first toggle disables.
func (db *DB) ToggleReminders(ctx context.Context, userID string) (bool, error) {
	now := stamp(time.Now())
	var enabled bool
	err := db.QueryRowContext(ctx, `
		INSERT INTO user_settings (user_id, reminders_enabled, reminder_hours_before, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			reminders_enabled = NOT user_settings.reminders_enabled,
			updated_at = excluded.updated_at
		RETURNING reminders_enabled`,
		userID, now, now,
	).Scan(&enabled)
	if err != nil {
		return false, fmt.Errorf("toggle reminders %s: %w", userID, err)
	}
	return enabled, nil
}
