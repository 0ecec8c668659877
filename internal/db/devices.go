package db

import (
	"context"
	"fmt"
	"time"

	"studiotblack/internal/model"
)

// RegisterDevice stores a push token. A token moves to the latest user that
// registers it.
func (db *DB) RegisterDevice(ctx context.Context, d model.Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (token, user_id, platform, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id = excluded.user_id,
			platform = excluded.platform`,
		d.Token, d.UserID, d.Platform, stamp(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// DeleteDevice forgets a push token.
func (db *DB) DeleteDevice(ctx context.Context, token string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM devices WHERE token = ?", token)
	return err
}

// ListDevices returns the push tokens of a user.
func (db *DB) ListDevices(ctx context.Context, userID string) ([]model.Device, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT user_id, token, platform, created_at FROM devices WHERE user_id = ? ORDER BY created_at",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.UserID, &d.Token, &d.Platform, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
